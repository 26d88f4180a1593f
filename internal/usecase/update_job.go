package usecase

import (
	"context"
	"fmt"

	"CandlePull/internal/domain/models"
	applogger "CandlePull/pkg/logger"
	"CandlePull/pkg/queue"
)

// UpdateJobType is the queue message type of a background update run.
const UpdateJobType = "candles.update"

// Updater runs one update pass.
type Updater interface {
	UpdateCandles(ctx context.Context, from, to string) (*models.RunSummary, error)
}

// UpdateJob executes queued update requests.
type UpdateJob struct {
	updater Updater
	log     *applogger.Logger
}

var _ queue.Job = (*UpdateJob)(nil)

func NewUpdateJob(u Updater, l *applogger.Logger) *UpdateJob {
	return &UpdateJob{updater: u, log: l}
}

func (j *UpdateJob) Name() string { return "update-candles" }
func (j *UpdateJob) Type() string { return UpdateJobType }

// Handle runs the update. Per-instrument failures are logged, not retried:
// the next run resumes from whatever was stored.
func (j *UpdateJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[models.UpdateRequest](payload)
	if err != nil {
		return fmt.Errorf("update payload: %w", err)
	}
	if req.From == "" {
		req.From = FromLast
	}
	if req.To == "" {
		req.To = ToNow
	}

	summary, err := j.updater.UpdateCandles(ctx, req.From, req.To)
	if err != nil {
		return err
	}
	for _, r := range summary.Failures() {
		j.log.Warn("instrument update failed",
			applogger.String("run_id", summary.RunID),
			applogger.String("instrument", r.Instrument),
			applogger.String("error", r.Error))
	}
	j.log.Info("update job done",
		applogger.String("run_id", summary.RunID),
		applogger.Int("rows", summary.TotalRows()),
		applogger.Int("failed", len(summary.Failures())))
	return nil
}
