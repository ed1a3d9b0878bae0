package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nginxgo/reactorcore/conn"
)

func testEntry() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log.WithField("test", true)
}

func TestDrainAndExitCancelsImmediatelyWhenTableIsEmpty(t *testing.T) {
	table := conn.NewTable(4)
	unregistered := false
	canceled := make(chan struct{})
	cancel := func() { close(canceled) }

	done := make(chan struct{})
	go func() {
		drainAndExit(table, func() { unregistered = true }, cancel, time.Second, testEntry())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected drainAndExit to return promptly for an empty table")
	}
	if !unregistered {
		t.Fatal("expected listeners to be unregistered before draining")
	}
	select {
	case <-canceled:
	default:
		t.Fatal("expected cancel to be called for an already-empty table")
	}
}

func TestDrainAndExitForcesExitAfterTimeoutWithConnectionsOpen(t *testing.T) {
	table := conn.NewTable(4)
	if _, err := table.Acquire(0, 4096); err != nil {
		t.Fatal(err)
	}

	canceled := make(chan struct{})
	cancel := func() { close(canceled) }

	start := time.Now()
	drainAndExit(table, func() {}, cancel, 30*time.Millisecond, testEntry())
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected drainAndExit to wait out the timeout, returned after %s", elapsed)
	}
	select {
	case <-canceled:
	default:
		t.Fatal("expected cancel to be called once worker_shutdown_timeout elapsed")
	}
}

func TestDrainAndExitCancelsAsSoonAsTableDrains(t *testing.T) {
	table := conn.NewTable(4)
	c, err := table.Acquire(0, 4096)
	if err != nil {
		t.Fatal(err)
	}

	canceled := make(chan struct{})
	cancel := func() { close(canceled) }

	go func() {
		time.Sleep(60 * time.Millisecond)
		table.Release(c)
	}()

	start := time.Now()
	drainAndExit(table, func() {}, cancel, 5*time.Second, testEntry())
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Fatal("expected drainAndExit to return once the table drained, not wait for the full timeout")
	}
	select {
	case <-canceled:
	default:
		t.Fatal("expected cancel to be called once the connection was released")
	}
}
