package terminal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/logger"
)

// Config addresses the terminal bridge.
type Config struct {
	URL          string        `yaml:"url" default:"http://127.0.0.1:18812" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" default:"30s"`
	PingInterval time.Duration `yaml:"ping_interval" default:"20s"`
	// InclusiveEndOffset is subtracted from every range end because the
	// terminal treats both range bounds as inclusive.
	InclusiveEndOffset time.Duration       `yaml:"inclusive_end_offset" default:"1m"`
	Login              models.SourceConfig `yaml:"login"`
}

// Source talks to a market-data terminal through its bridge process.
// One Source serves one task; it is not safe for concurrent use.
type Source struct {
	cfg       Config
	log       *logger.Logger
	t         transport
	connected bool
	mode      models.LoginMode
}

var _ repository.CandleSource = (*Source)(nil)

func NewSource(cfg Config, log *logger.Logger) *Source {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Source{cfg: cfg, log: log}
}

type initializeParams struct {
	Mode     models.LoginMode `json:"mode"`
	Server   string           `json:"server,omitempty"`
	Login    string           `json:"login,omitempty"`
	Password string           `json:"password,omitempty"`
	Path     string           `json:"path,omitempty"`
}

type ackResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Connect validates the login combination before opening the bridge session.
func (s *Source) Connect(ctx context.Context, sc models.SourceConfig) error {
	mode, err := sc.LoginMode()
	if err != nil {
		return err
	}
	if s.t == nil {
		t, err := s.dial(ctx)
		if err != nil {
			return errs.SourceUnavailable("terminal bridge unreachable", err).WithParam("url", s.cfg.URL)
		}
		s.t = t
	}

	var ack ackResult
	err = s.t.call(ctx, "initialize", initializeParams{
		Mode:     mode,
		Server:   sc.Server,
		Login:    sc.Login,
		Password: sc.Password,
		Path:     sc.TerminalPath,
	}, &ack)
	if err != nil {
		return errs.SourceUnavailable("terminal initialize failed", err)
	}
	if !ack.OK {
		return errs.SourceUnavailable("terminal refused connection", errors.New(ack.Message)).
			WithParam("mode", string(mode))
	}

	s.connected = true
	s.mode = mode
	s.log.Debug("terminal connected", logger.String("mode", string(mode)), logger.String("url", s.cfg.URL))
	return nil
}

func (s *Source) dial(ctx context.Context) (transport, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return newHTTPTransport(s.cfg.URL, s.cfg.Timeout), nil
	case "ws", "wss":
		return dialWS(ctx, s.cfg.URL, s.cfg.Timeout, s.cfg.PingInterval)
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
}

type symbolParams struct {
	Symbol string `json:"symbol"`
	Enable bool   `json:"enable"`
}

// EnsureWatched adds the instrument to the terminal's watch list.
func (s *Source) EnsureWatched(ctx context.Context, instrument string) error {
	if err := s.ready(); err != nil {
		return err
	}
	var ack ackResult
	if err := s.t.call(ctx, "symbol_select", symbolParams{Symbol: instrument, Enable: true}, &ack); err != nil {
		var re *remoteError
		if errors.As(err, &re) {
			return errs.Resolutionf("terminal cannot select %s", instrument).WithError(err).WithField("instrument")
		}
		return errs.SourceUnavailable("symbol_select failed", err)
	}
	if !ack.OK {
		return errs.Resolutionf("terminal cannot select %s", instrument).WithField("instrument").
			WithParam("reason", ack.Message)
	}
	return nil
}

type ratesParams struct {
	Symbol    string            `json:"symbol"`
	Timeframe int               `json:"timeframe"`
	Shape     models.FetchShape `json:"shape"`
	StartPos  *int64            `json:"start_pos,omitempty"`
	Count     *int64            `json:"count,omitempty"`
	DateFrom  *int64            `json:"date_from,omitempty"`
	DateTo    *int64            `json:"date_to,omitempty"`
}

type ratesResult struct {
	Rates []models.RawCandle `json:"rates"`
}

func ptr(v int64) *int64 { return &v }

// buildRates maps a query onto the bridge's copy_rates arguments.
func (s *Source) buildRates(q models.FetchQuery) (ratesParams, error) {
	p := ratesParams{Symbol: q.Instrument.Name, Timeframe: q.Period.Token, Shape: q.Shape}
	w := q.Window
	switch q.Shape {
	case models.ShapeFromPos:
		p.StartPos = ptr(w.Start.Index())
		p.Count = ptr(w.Size())
	case models.ShapeFrom:
		p.DateFrom = ptr(w.Start.Time().Unix())
		p.Count = ptr(w.End.Index())
	case models.ShapeRange:
		end := w.End.Time().Add(-s.cfg.InclusiveEndOffset)
		if end.Before(w.Start.Time()) {
			end = w.Start.Time()
		}
		p.DateFrom = ptr(w.Start.Time().Unix())
		p.DateTo = ptr(end.Unix())
	default:
		return p, errs.Configurationf("unknown fetch shape %q", q.Shape)
	}
	return p, nil
}

// FetchRaw runs one copy_rates call. An empty answer is returned as is.
func (s *Source) FetchRaw(ctx context.Context, q models.FetchQuery) ([]models.RawCandle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	params, err := s.buildRates(q)
	if err != nil {
		return nil, err
	}
	var res ratesResult
	if err := s.t.call(ctx, "copy_rates", params, &res); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.SourceUnavailable("copy_rates failed", err).
			WithParam("instrument", q.Instrument.Name).
			WithParam("window", q.Window.String())
	}
	return res.Rates, nil
}

func (s *Source) ready() error {
	if !s.connected || s.t == nil {
		return errs.SourceUnavailable("terminal not connected", nil)
	}
	return nil
}

// Close ends the terminal session. Safe to call more than once.
func (s *Source) Close() error {
	if s.t == nil {
		return nil
	}
	if s.connected {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.t.call(ctx, "shutdown", nil, nil)
		cancel()
	}
	s.connected = false
	err := s.t.close()
	s.t = nil
	return err
}

// Factory opens a private, connected Source per caller.
type Factory struct {
	cfg Config
	log *logger.Logger
}

var _ repository.SourceFactory = (*Factory)(nil)

func NewFactory(cfg Config, log *logger.Logger) *Factory {
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) Open(ctx context.Context) (repository.CandleSource, error) {
	s := NewSource(f.cfg, f.log)
	if err := s.Connect(ctx, f.cfg.Login); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
