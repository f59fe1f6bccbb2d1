package services_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/geofence-agent/internal/geofence"
	"github.com/benmeehan/geofence-agent/internal/metrics"
	"github.com/benmeehan/geofence-agent/internal/models"
	"github.com/benmeehan/geofence-agent/internal/services"
)

var sanFrancisco = geofence.NewRegion(models.Coordinates{Latitude: 37.7749, Longitude: -122.4194}, 500)

func newProcessor(t *testing.T, n services.Notifier) (*services.TransitionProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(nil)
	p := services.NewTransitionProcessor(n, 16, 1, time.Second, m, zerolog.Nop())
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Stop() })
	return p, m
}

func event(kind models.TransitionKind, id string) models.TransitionEvent {
	return models.TransitionEvent{ID: id, Kind: kind, MatchedRequestIDs: []string{"location"}, Timestamp: time.Now()}
}

func TestTransitionProcessor_EnterThenExit(t *testing.T) {
	n := &recordingNotifier{}
	p, m := newProcessor(t, n)

	assert.Equal(t, models.StateUnconfigured, p.State())
	p.Activate(sanFrancisco)
	assert.Equal(t, models.StateOutsideRegion, p.State())
	assert.Equal(t, models.StateMonitoring, p.State())

	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "e1")))
	assert.Equal(t, models.StateInsideRegion, p.State())

	assert.True(t, p.HandleEvent(event(models.TransitionExit, "e2")))
	assert.Equal(t, models.StateOutsideRegion, p.State())

	assert.Eventually(t, func() bool { return len(n.Sent()) == 2 }, time.Second, 10*time.Millisecond)
	sent := n.Sent()
	assert.Equal(t, "ENTERED", sent[0].Title)
	assert.Equal(t, "You've entered the vicinity of the location.", sent[0].Body)
	assert.Equal(t, "EXITED", sent[1].Title)
	assert.Equal(t, "You've exited from the vicinity of the location.", sent[1].Body)
	assert.Equal(t, "location", sent[0].RequestID)
	assert.NotEmpty(t, sent[0].ID)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.NotificationsSent.WithLabelValues("ENTER")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTransitionProcessor_RepeatedEnterDispatchesEachTime(t *testing.T) {
	n := &recordingNotifier{}
	p, _ := newProcessor(t, n)
	p.Activate(sanFrancisco)

	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "a")))
	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "b")))
	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "")))
	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "")))

	assert.Equal(t, models.StateInsideRegion, p.State())
	assert.Eventually(t, func() bool { return len(n.Sent()) == 4 }, time.Second, 10*time.Millisecond)
}

func TestTransitionProcessor_RedeliveredEventIsDropped(t *testing.T) {
	n := &recordingNotifier{}
	p, m := newProcessor(t, n)
	p.Activate(sanFrancisco)

	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "same")))
	assert.False(t, p.HandleEvent(event(models.TransitionEnter, "same")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues(metrics.DropDuplicate)))
	assert.Eventually(t, func() bool { return len(n.Sent()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestTransitionProcessor_ErrorEventChangesNothing(t *testing.T) {
	n := &recordingNotifier{}
	p, m := newProcessor(t, n)
	p.Activate(sanFrancisco)
	require.True(t, p.HandleEvent(event(models.TransitionEnter, "e1")))

	ev := event(models.TransitionExit, "e2")
	ev.HasError = true
	ev.ErrorDetail = "GEOFENCE_NOT_AVAILABLE"

	assert.False(t, p.HandleEvent(ev))
	assert.Equal(t, models.StateInsideRegion, p.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues(metrics.DropError)))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, n.Sent(), 1)
}

func TestTransitionProcessor_UnsupportedKind(t *testing.T) {
	n := &recordingNotifier{}
	p, m := newProcessor(t, n)
	p.Activate(sanFrancisco)

	assert.False(t, p.HandleEvent(event(models.TransitionDwell, "d1")))
	assert.False(t, p.HandleEvent(event("BOGUS", "d2")))
	assert.Equal(t, models.StateOutsideRegion, p.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues(metrics.DropUnsupported)))
}

func TestTransitionProcessor_UnconfiguredAcceptsNothing(t *testing.T) {
	n := &recordingNotifier{}
	p, _ := newProcessor(t, n)

	assert.False(t, p.HandleEvent(event(models.TransitionEnter, "e1")))
	assert.Equal(t, models.StateUnconfigured, p.State())

	p.Activate(sanFrancisco)
	p.Deactivate()
	assert.False(t, p.HandleEvent(event(models.TransitionExit, "e2")))
	assert.Nil(t, p.ActiveRegion())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, n.Sent())
}

func TestTransitionProcessor_ForeignRequestID(t *testing.T) {
	n := &recordingNotifier{}
	p, _ := newProcessor(t, n)
	p.Activate(sanFrancisco)

	ev := event(models.TransitionEnter, "x")
	ev.MatchedRequestIDs = []string{"other"}
	assert.False(t, p.HandleEvent(ev))

	ev.MatchedRequestIDs = nil
	assert.True(t, p.HandleEvent(ev))
}

func TestTransitionProcessor_ReconfigureResetsToOutside(t *testing.T) {
	n := &recordingNotifier{}
	p, _ := newProcessor(t, n)
	p.Activate(sanFrancisco)
	require.True(t, p.HandleEvent(event(models.TransitionEnter, "e1")))

	other := geofence.NewRegion(models.Coordinates{Latitude: 51.5, Longitude: -0.12}, 100)
	p.Activate(other)

	assert.Equal(t, models.StateOutsideRegion, p.State())
	assert.Equal(t, other, *p.ActiveRegion())
	assert.Nil(t, p.Snapshot().LastNotification)

	// same ID as before the reconfiguration is a fresh event for the new region
	assert.True(t, p.HandleEvent(event(models.TransitionEnter, "e1")))
}

func TestTransitionProcessor_DeliverPreservesOrder(t *testing.T) {
	n := &recordingNotifier{}
	p, _ := newProcessor(t, n)
	p.Activate(sanFrancisco)

	for i := 0; i < 10; i++ {
		kind := models.TransitionEnter
		if i%2 == 1 {
			kind = models.TransitionExit
		}
		p.Deliver(event(kind, fmt.Sprintf("ev-%d", i)))
	}

	assert.Eventually(t, func() bool { return len(n.Sent()) == 10 }, time.Second, 10*time.Millisecond)
	for i, title := range n.Titles() {
		if i%2 == 0 {
			assert.Equal(t, "ENTERED", title)
		} else {
			assert.Equal(t, "EXITED", title)
		}
	}
	assert.Equal(t, models.StateOutsideRegion, p.State())
}

func TestTransitionProcessor_SlowNotifierDoesNotStallEvents(t *testing.T) {
	n := &recordingNotifier{block: make(chan struct{})}
	m := metrics.New(nil)
	p := services.NewTransitionProcessor(n, 1, 1, time.Second, m, zerolog.Nop())
	require.NoError(t, p.Start())
	p.Activate(sanFrancisco)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			p.HandleEvent(event(models.TransitionEnter, fmt.Sprintf("e%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event processing blocked on the notifier")
	}
	assert.Equal(t, models.StateInsideRegion, p.State())
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.EventsDropped.WithLabelValues(metrics.DropQueueFull)), 1.0)

	close(n.block)
	require.NoError(t, p.Stop())
}

func TestTransitionProcessor_NotifierFailureCounted(t *testing.T) {
	n := &recordingNotifier{err: fmt.Errorf("sink down")}
	p, m := newProcessor(t, n)
	p.Activate(sanFrancisco)

	assert.True(t, p.HandleEvent(event(models.TransitionExit, "e1")))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("EXIT")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTransitionProcessor_Lifecycle(t *testing.T) {
	n := &recordingNotifier{}
	p := services.NewTransitionProcessor(n, 4, 1, time.Second, nil, zerolog.Nop())

	assert.ErrorIs(t, p.Stop(), services.ErrProcessorStopped)
	require.NoError(t, p.Start())
	assert.Error(t, p.Start())

	p.Activate(sanFrancisco)
	p.Deliver(event(models.TransitionEnter, "e1"))
	require.NoError(t, p.Stop())

	// queued events are applied before Stop returns
	assert.Len(t, n.Sent(), 1)

	p.Deliver(event(models.TransitionExit, "e2"))
	assert.Equal(t, models.StateInsideRegion, p.State())

	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
}

func TestTransitionProcessor_Snapshot(t *testing.T) {
	n := &recordingNotifier{}
	p, _ := newProcessor(t, n)

	assert.Equal(t, models.Status{State: models.StateUnconfigured}, p.Snapshot())

	p.Activate(sanFrancisco)
	require.True(t, p.HandleEvent(event(models.TransitionEnter, "e1")))

	s := p.Snapshot()
	assert.Equal(t, models.StateInsideRegion, s.State)
	require.NotNil(t, s.Region)
	assert.Equal(t, sanFrancisco, *s.Region)
	require.NotNil(t, s.LastNotification)
	assert.Equal(t, models.TransitionEnter, s.LastNotification.Kind)
	assert.Equal(t, "e1", s.LastNotification.EventID)
}
