package contract

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/notifications"
	"zk-carbon/contract-runner/pkg/workflows"
)

// ClaimSource is the part of Service the refresher polls
type ClaimSource interface {
	AllClaims(ctx context.Context) ([]Claim, error)
	RefreshListings(ctx context.Context) error
}

// Refresher periodically reloads the listing cache and announces new claims and status changes
type Refresher struct {
	cron      *cron.Cron
	source    ClaimSource
	publisher notifications.Publisher
	machine   *workflows.StateMachine
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	seeded  bool
	seen    map[uint64]ClaimStatus
}

// NewRefresher creates a refresher. publisher may be nil, in which case only the cache is refreshed.
func NewRefresher(source ClaimSource, publisher notifications.Publisher, logger *zap.Logger) *Refresher {
	return &Refresher{
		cron:      cron.New(),
		source:    source,
		publisher: publisher,
		machine:   workflows.NewClaimStateMachine(),
		logger:    logger,
		seen:      make(map[uint64]ClaimStatus),
	}
}

// Start schedules Tick with a cron spec such as "@every 30s"
func (r *Refresher) Start(ctx context.Context, spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher already running")
	}
	if _, err := r.cron.AddFunc(spec, func() {
		if err := r.Tick(ctx); err != nil {
			r.logger.Warn("Listing refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh spec %q: %w", spec, err)
	}

	r.logger.Info("Starting listing refresher", zap.String("spec", spec))
	r.cron.Start()
	r.running = true
	return nil
}

// Stop waits for a running tick to finish and stops the schedule
func (r *Refresher) Stop() {
	r.mu.Lock()
	running := r.running
	r.running = false
	r.mu.Unlock()

	if !running {
		return
	}
	r.logger.Info("Stopping listing refresher")
	<-r.cron.Stop().Done()
}

// Tick refreshes the listings once and diffs claim statuses against the previous tick.
// The first tick only records what exists.
func (r *Refresher) Tick(ctx context.Context) error {
	refreshErr := r.source.RefreshListings(ctx)

	claims, err := r.source.AllClaims(ctx)
	if err != nil {
		return errors.Join(refreshErr, fmt.Errorf("failed to load claims: %w", err))
	}

	r.mu.Lock()
	var events []notifications.Event
	for _, claim := range claims {
		prev, known := r.seen[claim.ID]
		r.seen[claim.ID] = claim.Status

		switch {
		case !known:
			if r.seeded {
				events = append(events, notifications.NewEvent(notifications.EventClaimCreated, map[string]interface{}{
					"id":           claim.ID,
					"organization": claim.Organization,
					"status":       claim.Status,
				}))
			}
		case prev != claim.Status:
			if err := r.machine.Validate(string(prev), string(claim.Status)); err != nil {
				r.logger.Warn("Unexpected claim status change", zap.Uint64("claim_id", claim.ID), zap.Error(err))
			}
			events = append(events, notifications.NewEvent(notifications.EventClaimStatusChanged, map[string]interface{}{
				"id":           claim.ID,
				"organization": claim.Organization,
				"from":         prev,
				"to":           claim.Status,
			}))
		}
	}
	r.seeded = true
	r.mu.Unlock()

	if r.publisher != nil {
		for _, event := range events {
			if err := r.publisher.Publish(event); err != nil {
				r.logger.Warn("Failed to publish claim event", zap.String("type", string(event.Type)), zap.Error(err))
			}
		}
	}

	return refreshErr
}
