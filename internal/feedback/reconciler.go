package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// OutboxStore exposes pending completion marks
type OutboxStore interface {
	PendingCompletions(ctx context.Context, limit int) ([]models.Completion, error)
	ApplyCompletion(ctx context.Context, feedbackID string) error
	RecordCompletionFailure(ctx context.Context, feedbackID string, cause error) error
}

// ReconcileReport summarizes one reconcile pass
type ReconcileReport struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// Reconciler retries completion marks that could not be applied when
// their feedback was saved
type Reconciler struct {
	store OutboxStore
	batch int
}

// NewReconciler creates a reconciler processing up to batch entries per pass
func NewReconciler(store OutboxStore, batch int) *Reconciler {
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{store: store, batch: batch}
}

// Run applies every pending completion once
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	pending, err := r.store.PendingCompletions(ctx, r.batch)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("failed to list pending completions: %w", err)
	}

	var report ReconcileReport
	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.store.ApplyCompletion(ctx, c.FeedbackID); err != nil {
			report.Failed++
			log.Warn("completion retry failed", "feedback_id", c.FeedbackID, "attempts", c.Attempts+1, "error", err)
			if rerr := r.store.RecordCompletionFailure(ctx, c.FeedbackID, err); rerr != nil {
				log.Error("failed to record completion failure", "feedback_id", c.FeedbackID, "error", rerr)
			}
			continue
		}
		report.Applied++
	}
	if report.Applied > 0 || report.Failed > 0 {
		log.Info("reconciled pending completions", "applied", report.Applied, "failed", report.Failed)
	}
	return report, nil
}

// Loop runs a pass every interval until ctx is done
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("completion reconcile pass failed", "error", err)
			}
		}
	}
}
