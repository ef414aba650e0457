package main

import (
	"testing"
	"time"

	"bracket-core/internal/events"
	"bracket-core/internal/reconnect"
)

func TestConnectionLossWatcherDetaches(t *testing.T) {
	bus := events.NewBus()
	started := make(chan struct{}, 4)
	sup := reconnect.New(reconnect.Config{
		Enabled:           true,
		MaxAttempts:       1,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		BackoffMultiplier: 1,
		ResetAfterSuccess: time.Minute,
	}, reconnect.Callbacks{
		Connect:     func() error { return nil },
		IsConnected: func() bool { return true },
		OnStart:     func() { started <- struct{}{} },
	})

	lost := watchConnectionLoss(bus, sup)

	bus.Publish(events.EventConnectionLost, nil)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("loss event did not reach the supervisor")
	}

	// Let the (already-connected) episode finish before detaching, so a later
	// trigger would not be swallowed as a duplicate.
	deadline := time.Now().Add(time.Second)
	for sup.State() != reconnect.StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("supervisor stuck in state %s", sup.State())
		}
		time.Sleep(time.Millisecond)
	}

	// A deliberate shutdown disconnect publishes the same event; after Close
	// it must not start a reconnect loop.
	lost.Close()
	bus.Publish(events.EventConnectionLost, nil)
	select {
	case <-started:
		t.Fatal("supervisor started after the watcher was detached")
	case <-time.After(50 * time.Millisecond):
	}
}
