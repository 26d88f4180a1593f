package models

import "time"

// RawCandle is one record as returned by the terminal.
type RawCandle struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume int64   `json:"tick_volume"`
	Spread     int64   `json:"spread"`
	RealVolume int64   `json:"real_volume"`
}

// Candle holds prices in instrument-native units.
type Candle struct {
	StartTS int64   `json:"start_ts_utc"`
	EndTS   int64   `json:"end_ts_utc"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
	Volume  int64   `json:"volume"`
	Spread  int64   `json:"spread"`
}

func (c Candle) Start() time.Time { return time.Unix(c.StartTS, 0).UTC() }

// FixedCandle holds prices scaled by 10^digits.
type FixedCandle struct {
	StartTS int64 `json:"start_ts_utc"`
	EndTS   int64 `json:"end_ts_utc"`
	Open    int64 `json:"open"`
	High    int64 `json:"high"`
	Low     int64 `json:"low"`
	Close   int64 `json:"close"`
	Volume  int64 `json:"volume"`
	Spread  int64 `json:"spread"`
}

// Batch is one normalized unit yielded by a candle stream.
type Batch struct {
	Instrument Instrument
	Period     Period
	// Index is 1-based.
	Index  int
	Count  int
	Window Window
	// Candles is always populated; Fixed only when fixed-point encoding is enabled.
	Candles []Candle
	Fixed   []FixedCandle
}

func (b *Batch) Len() int { return len(b.Candles) }

// CandleRow is a fixed-point candle tagged for the candles table.
type CandleRow struct {
	FixedCandle
	SymbolID  int
	PeriodID  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableRef names a schema-qualified table.
type TableRef struct {
	Schema string `yaml:"schema" default:"rest-api"`
	Name   string `yaml:"name" default:"candles"`
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
