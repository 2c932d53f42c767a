package ratings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyThenStopsPromptly(t *testing.T) {
	store := newFakeStore()
	e := New(store, nil)
	source := &fakeSource{body: gzipTSV("tt1\t8.0\t500\n"), tag: "tag-1"}
	ing := NewIngester(e, source, Options{MinVotes: 100})

	sched := NewScheduler(ing, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return e.State() == StateReady
	}, time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
	<-done
}

func TestScheduler_FailureLeavesNeverReadyEngineUninitialised(t *testing.T) {
	store := newFakeStore()
	e := New(store, nil)
	failing := &fakeSource{}
	failing.err = context.DeadlineExceeded
	ing := NewIngester(e, failing, Options{})

	sched := NewScheduler(ing, 5*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	<-done
	require.Equal(t, StateUninitialised, e.State(), "a store that was never ready must stay uninitialised on failure")
}
