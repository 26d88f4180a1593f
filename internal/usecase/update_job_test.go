package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
	"CandlePull/pkg/logger"
)

type updaterFunc func(ctx context.Context, from, to string) (*models.RunSummary, error)

func (f updaterFunc) UpdateCandles(ctx context.Context, from, to string) (*models.RunSummary, error) {
	return f(ctx, from, to)
}

func TestUpdateJobDefaultsLiterals(t *testing.T) {
	var gotFrom, gotTo string
	job := NewUpdateJob(updaterFunc(func(_ context.Context, from, to string) (*models.RunSummary, error) {
		gotFrom, gotTo = from, to
		return &models.RunSummary{Results: []models.InstrumentResult{{Instrument: "EURUSD", Err: errors.New("x"), Error: "x"}}}, nil
	}), logger.Nop())

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{}`)))
	assert.Equal(t, "last", gotFrom)
	assert.Equal(t, "now", gotTo)

	require.NoError(t, job.Handle(context.Background(), &models.UpdateRequest{From: "2020-01-01", To: "2020-02-01"}))
	assert.Equal(t, "2020-01-01", gotFrom)
	assert.Equal(t, UpdateJobType, job.Type())
}

func TestUpdateJobPropagatesRunErrors(t *testing.T) {
	job := NewUpdateJob(updaterFunc(func(context.Context, string, string) (*models.RunSummary, error) {
		return nil, errs.Validation("from", "bad")
	}), logger.Nop())

	err := job.Handle(context.Background(), models.UpdateRequest{From: "bad"})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Error(t, job.Handle(context.Background(), 12))
}
