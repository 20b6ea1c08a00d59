package contract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/notifications"
)

type fakeSource struct {
	mu        sync.Mutex
	claims    []Claim
	err       error
	refreshes int
}

func (f *fakeSource) AllClaims(context.Context) ([]Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Claim(nil), f.claims...), f.err
}

func (f *fakeSource) RefreshListings(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeSource) set(claims ...Claim) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = claims
}

type eventLog struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (l *eventLog) Publish(event notifications.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) types() []notifications.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]notifications.EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func TestRefresherDiffsClaims(t *testing.T) {
	source := &fakeSource{}
	log := &eventLog{}
	r := NewRefresher(source, log, zap.NewNop())
	ctx := context.Background()

	source.set(Claim{ID: 1, Status: ClaimStatusActive})
	require.NoError(t, r.Tick(ctx))
	assert.Empty(t, log.types(), "first tick only seeds")

	source.set(
		Claim{ID: 1, Status: ClaimStatusApproved, Organization: testOrg},
		Claim{ID: 2, Status: ClaimStatusActive},
	)
	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, []notifications.EventType{
		notifications.EventClaimStatusChanged,
		notifications.EventClaimCreated,
	}, log.types())

	changed := log.events[0]
	assert.Equal(t, uint64(1), changed.Data["id"])
	assert.Equal(t, ClaimStatusActive, changed.Data["from"])
	assert.Equal(t, ClaimStatusApproved, changed.Data["to"])

	// nothing changed
	require.NoError(t, r.Tick(ctx))
	assert.Len(t, log.types(), 2)
	assert.Equal(t, 3, source.refreshes)
}

func TestRefresherReportsSourceErrors(t *testing.T) {
	source := &fakeSource{err: errors.New("Command failed: connection refused")}
	r := NewRefresher(source, nil, zap.NewNop())

	err := r.Tick(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestRefresherSchedule(t *testing.T) {
	source := &fakeSource{}
	r := NewRefresher(source, nil, zap.NewNop())

	assert.Error(t, r.Start(context.Background(), "not a spec"))

	require.NoError(t, r.Start(context.Background(), "@every 1s"))
	assert.Error(t, r.Start(context.Background(), "@every 1s"))

	assert.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.refreshes > 0
	}, 5*time.Second, 50*time.Millisecond)

	r.Stop()
	r.Stop()
}
