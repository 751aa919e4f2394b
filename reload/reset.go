package reload

import (
	"context"
	"log/slog"
	"time"
)

// resetTimeout bounds each asynchronous bucket sweep.
const resetTimeout = 30 * time.Second

// BucketResetter is the slice of the bucket store the reset handler needs.
type BucketResetter interface {
	ResetByPrefix(ctx context.Context, prefix string) (int64, error)
}

// BucketResetHandler is a reload listener that clears the changed rule set's
// buckets so stale consumption does not carry over into new limits. Resets
// run asynchronously and are best effort: a failure logs a warning and the
// reload proceeds.
type BucketResetHandler struct {
	store  BucketResetter
	logger *slog.Logger
}

func NewBucketResetHandler(store BucketResetter, logger *slog.Logger) *BucketResetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BucketResetHandler{store: store, logger: logger}
}

func (h *BucketResetHandler) OnRuleChanged(ruleSetID string) {
	go h.reset(ruleSetID)
}

func (h *BucketResetHandler) reset(ruleSetID string) {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	prefix := ""
	if ruleSetID != "" {
		prefix = ruleSetID + ":"
	}
	deleted, err := h.store.ResetByPrefix(ctx, prefix)
	if err != nil {
		h.logger.Warn("bucket reset after rule change failed",
			"ruleSetId", ruleSetID, "error", err)
		return
	}
	h.logger.Info("buckets reset after rule change",
		"ruleSetId", ruleSetID, "deleted", deleted)
}
