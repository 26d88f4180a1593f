package codec

import (
	"github.com/shopspring/decimal"

	"CandlePull/internal/domain/models"
)

// ToFixed returns round(price * 10^digits).
func ToFixed(price float64, digits int) int64 {
	return decimal.NewFromFloat(price).Shift(int32(digits)).Round(0).IntPart()
}

// ToFloat returns price / 10^digits.
func ToFloat(price int64, digits int) float64 {
	return decimal.New(price, -int32(digits)).InexactFloat64()
}

// Encode converts the OHLC columns to fixed point. Volume and timestamps are copied.
func Encode(c models.Candle, digits int) models.FixedCandle {
	return models.FixedCandle{
		StartTS: c.StartTS,
		EndTS:   c.EndTS,
		Open:    ToFixed(c.Open, digits),
		High:    ToFixed(c.High, digits),
		Low:     ToFixed(c.Low, digits),
		Close:   ToFixed(c.Close, digits),
		Volume:  c.Volume,
		Spread:  c.Spread,
	}
}

// Decode converts the OHLC columns back to instrument units.
func Decode(f models.FixedCandle, digits int) models.Candle {
	return models.Candle{
		StartTS: f.StartTS,
		EndTS:   f.EndTS,
		Open:    ToFloat(f.Open, digits),
		High:    ToFloat(f.High, digits),
		Low:     ToFloat(f.Low, digits),
		Close:   ToFloat(f.Close, digits),
		Volume:  f.Volume,
		Spread:  f.Spread,
	}
}

func EncodeAll(candles []models.Candle, digits int) []models.FixedCandle {
	out := make([]models.FixedCandle, len(candles))
	for i, c := range candles {
		out[i] = Encode(c, digits)
	}
	return out
}

func DecodeAll(rows []models.FixedCandle, digits int) []models.Candle {
	out := make([]models.Candle, len(rows))
	for i, r := range rows {
		out[i] = Decode(r, digits)
	}
	return out
}
