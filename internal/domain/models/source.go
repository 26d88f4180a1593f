package models

import (
	"CandlePull/internal/domain/errs"
)

// SourceConfig holds the optional terminal login parameters.
type SourceConfig struct {
	Server       string `yaml:"server" json:"server,omitempty"`
	Login        string `yaml:"login" json:"login,omitempty"`
	Password     string `yaml:"password" json:"password,omitempty"`
	TerminalPath string `yaml:"path" json:"path,omitempty"`
}

// LoginMode is how a terminal session is established.
type LoginMode string

const (
	// LoginFull authenticates against a trade server.
	LoginFull LoginMode = "full"
	// LoginPath attaches to the terminal installed at TerminalPath.
	LoginPath LoginMode = "path"
	// LoginDefault attaches to the default local terminal.
	LoginDefault LoginMode = "default"
)

// LoginMode applies the all-or-nothing rule to the four fields.
func (c SourceConfig) LoginMode() (LoginMode, error) {
	set := 0
	for _, v := range []string{c.Server, c.Login, c.Password, c.TerminalPath} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 4:
		return LoginFull, nil
	case set == 0:
		return LoginDefault, nil
	case set == 1 && c.TerminalPath != "":
		return LoginPath, nil
	default:
		return "", errs.Configuration("terminal login needs server, login, password and path together, only path, or nothing").
			WithParam("server", c.Server != "").
			WithParam("login", c.Login != "").
			WithParam("password", c.Password != "").
			WithParam("path", c.TerminalPath != "")
	}
}

// FetchShape is the terminal call used for a stream, decided once from the bound modes.
type FetchShape string

const (
	// ShapeFromPos: ordinal start, bar count.
	ShapeFromPos FetchShape = "from_pos"
	// ShapeFrom: calendar start, bar count.
	ShapeFrom FetchShape = "from"
	// ShapeRange: calendar start and end.
	ShapeRange FetchShape = "range"
)

// ShapeFor selects the fetch shape for a pair of bounds.
func ShapeFor(start, end Bound) (FetchShape, error) {
	switch {
	case start.Mode() == ModeOrdinal && end.Mode() == ModeOrdinal:
		return ShapeFromPos, nil
	case start.Mode() == ModeCalendar && end.Mode() == ModeOrdinal:
		return ShapeFrom, nil
	case start.Mode() == ModeCalendar && end.Mode() == ModeCalendar:
		return ShapeRange, nil
	default:
		return "", errs.Configurationf("no fetch shape for %s start and %s end", start.Mode(), end.Mode())
	}
}

// FetchQuery is one raw fetch against the terminal.
type FetchQuery struct {
	Instrument Instrument
	Period     Period
	Shape      FetchShape
	Window     Window
}
