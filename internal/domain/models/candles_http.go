package models

// Requests for candle HTTP endpoints.

type UpdateRequest struct {
	From string `json:"from" default:"last" validate:"required"`
	To   string `json:"to" default:"now" validate:"required"`
}

type HistoryRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	Period     string `query:"period" json:"period" default:"M1" validate:"oneof=M1 M5 M10 M15 M30 H1 H4 DAY WEEK MONTH"`
	From       string `query:"from" json:"from" validate:"required"`
	To         string `query:"to" json:"to"`
	Limit      int    `query:"limit" json:"limit" default:"10000" validate:"gte=1,lte=50000"`
}

type UpdateAccepted struct {
	JobID string `json:"job_id"`
	From  string `json:"from"`
	To    string `json:"to"`
}
