package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeRefresher struct {
	mu   sync.Mutex
	runs int
	n    int
	err  error
	ran  chan struct{}
}

func (f *fakeRefresher) RefreshExtremes(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return f.n, f.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunNowNotifies(t *testing.T) {
	job := &fakeRefresher{n: 312}
	var got []Event
	s := New(job, func(e Event) { got = append(got, e) }, quiet())

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != EventExtremesRefreshed || got[0].Contracts != 312 || got[0].Error != "" {
		t.Errorf("events = %+v", got)
	}

	job.err = errors.New("socrata 429")
	if err := s.RunNow(context.Background()); err == nil {
		t.Error("expected error")
	}
	if len(got) != 2 || got[1].Error != "socrata 429" {
		t.Errorf("failure event = %+v", got)
	}
}

func TestStartEmptyScheduleIsIdle(t *testing.T) {
	s := New(&fakeRefresher{}, nil, quiet())
	if err := s.Start(""); err != nil {
		t.Fatal(err)
	}
	if !s.Next().IsZero() {
		t.Error("idle scheduler should have no next run")
	}
	<-s.Stop().Done()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&fakeRefresher{}, nil, quiet())
	if err := s.Start("every now and then"); err == nil {
		t.Error("expected parse error")
	}
}

func TestScheduledRun(t *testing.T) {
	job := &fakeRefresher{ran: make(chan struct{}, 1)}
	s := New(job, nil, quiet())
	if err := s.Start("@every 1s"); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if s.Next().IsZero() {
		t.Error("next run not scheduled")
	}
	select {
	case <-job.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}
}
