package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/hvacmon/pkg/models"
)

// captureChannel records sent notifications for assertions.
type captureChannel struct {
	mu   sync.Mutex
	name string
	sent []*models.NotificationRequest
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, req *models.NotificationRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return nil
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestEscalator(t *testing.T) (*Escalator, *Store) {
	t.Helper()
	store := NewStore(nil)
	dispatcher := NewDispatcher(16, nil)
	for _, name := range []string{"email", "slack", "sms"} {
		dispatcher.Register(&captureChannel{name: name})
	}
	return NewEscalator(store, dispatcher, nil, 0, nil), store
}

func TestEscalatorCriticalUnacknowledgedClimbs(t *testing.T) {
	escalator, store := newTestEscalator(t)

	created := time.Now()
	alert := newTestAlert("s1", models.SeverityCritical, created)
	require.NoError(t, store.Insert(alert))

	// Inside the 5 minute interval nothing moves.
	escalator.Sweep(created.Add(4 * time.Minute))
	got, err := store.Get(alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EscalationLevel)

	// Six minutes in, the alert reaches level 1 and escalated_at is stamped.
	escalator.Sweep(created.Add(6 * time.Minute))
	got, err = store.Get(alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EscalationLevel)
	require.NotNil(t, got.EscalatedAt)

	// The next interval counts from the last escalation, not from creation.
	escalator.Sweep(created.Add(7 * time.Minute))
	got, _ = store.Get(alert.AlertID)
	assert.Equal(t, 1, got.EscalationLevel)

	escalator.Sweep(created.Add(12 * time.Minute))
	got, _ = store.Get(alert.AlertID)
	assert.Equal(t, 2, got.EscalationLevel)
}

func TestEscalatorLevelNeverExceedsMax(t *testing.T) {
	escalator, store := newTestEscalator(t)

	created := time.Now()
	alert := newTestAlert("s1", models.SeverityCritical, created)
	require.NoError(t, store.Insert(alert))

	for i := 1; i <= 10; i++ {
		escalator.Sweep(created.Add(time.Duration(i) * 10 * time.Minute))
	}

	got, err := store.Get(alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, DefaultEscalationPolicies()[models.SeverityCritical].MaxLevel, got.EscalationLevel)
}

func TestEscalatorAcknowledgeFreezes(t *testing.T) {
	escalator, store := newTestEscalator(t)

	created := time.Now()
	alert := newTestAlert("s1", models.SeverityCritical, created)
	require.NoError(t, store.Insert(alert))
	require.NoError(t, store.Acknowledge(alert.AlertID, "operator"))

	escalator.Sweep(created.Add(time.Hour))

	got, err := store.Get(alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EscalationLevel)
}

func TestEscalatorSuppressedSkipsAndReverts(t *testing.T) {
	escalator, store := newTestEscalator(t)

	created := time.Now()
	alert := newTestAlert("s1", models.SeverityCritical, created)
	require.NoError(t, store.Insert(alert))
	require.NoError(t, store.Suppress(alert.AlertID, 10*time.Minute))

	// While suppressed the alert does not escalate even past its interval.
	escalator.Sweep(created.Add(6 * time.Minute))
	got, err := store.Get(alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuppressed, got.Status)
	assert.Equal(t, 0, got.EscalationLevel)

	// Past suppressed_until the sweep reverts it to ACTIVE without
	// escalating in the same pass.
	escalator.Sweep(created.Add(11 * time.Minute))
	got, err = store.Get(alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.SuppressedUntil)
	assert.Equal(t, 0, got.EscalationLevel)

	// The following sweep escalates normally.
	escalator.Sweep(created.Add(20 * time.Minute))
	got, _ = store.Get(alert.AlertID)
	assert.Equal(t, 1, got.EscalationLevel)
}

func TestEscalatorSeverityCadence(t *testing.T) {
	escalator, store := newTestEscalator(t)

	created := time.Now()
	low := newTestAlert("s1", models.SeverityLow, created)
	critical := newTestAlert("s2", models.SeverityCritical, created)
	require.NoError(t, store.Insert(low))
	require.NoError(t, store.Insert(critical))

	escalator.Sweep(created.Add(10 * time.Minute))

	gotLow, _ := store.Get(low.AlertID)
	gotCritical, _ := store.Get(critical.AlertID)
	assert.Equal(t, 0, gotLow.EscalationLevel, "LOW escalates hourly")
	assert.Equal(t, 1, gotCritical.EscalationLevel, "CRITICAL escalates after 5 minutes")
}

func TestEscalatorRecordsEscalationMetric(t *testing.T) {
	escalator, store := newTestEscalator(t)
	recorder := newRecorderMetrics()
	escalator.SetMetrics(recorder)

	created := time.Now()
	alert := newTestAlert("s1", models.SeverityCritical, created)
	require.NoError(t, store.Insert(alert))

	escalator.Sweep(created.Add(6 * time.Minute))

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, 1, recorder.escalations["CRITICAL"])
}

func TestEscalationRecipientsByLevel(t *testing.T) {
	assert.Equal(t, []string{"supervisor@company.com"}, EscalationRecipients(1))
	assert.Equal(t, []string{"manager@company.com"}, EscalationRecipients(2))
	assert.Equal(t, []string{"director@company.com", "emergency@company.com"}, EscalationRecipients(3))
	assert.Equal(t, []string{"emergency@company.com"}, EscalationRecipients(9))
}

func TestInitialRecipientsBySeverity(t *testing.T) {
	assert.Equal(t, []string{"facility@company.com"}, InitialRecipients(models.SeverityLow))
	assert.Len(t, InitialRecipients(models.SeverityMedium), 2)
	assert.Len(t, InitialRecipients(models.SeverityHigh), 3)
	assert.Len(t, InitialRecipients(models.SeverityCritical), 4)
}

func TestEscalatorRunStopsOnCancel(t *testing.T) {
	escalator, _ := newTestEscalator(t)
	escalator.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		escalator.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("escalator did not stop after cancel")
	}
}
