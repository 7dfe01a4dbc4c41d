package archival

import (
	"context"
	"testing"
	"time"

	"event-analytics-api/internal/event/domain"
)

// blockingHot parks SelectArchivable until released, to hold a pass open.
type blockingHot struct {
	fakeHot
	entered chan struct{}
	release chan struct{}
}

func (b *blockingHot) SelectArchivable(ctx context.Context, olderThan, notOlderThan time.Time, limit int) ([]*domain.Event, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunner_StartRunsImmediately(t *testing.T) {
	hot := &fakeHot{batches: [][]*domain.Event{makeEvents(2, "b1")}}
	r := NewRunner(NewEngine(hot, &fakeCold{}, Config{BatchDelay: time.Millisecond}, quietLogger()), time.Hour, quietLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	waitFor(t, func() bool { return r.LastRun() != nil }, "first pass never completed")
	if got := r.LastRun().EventsDeleted; got != 2 {
		t.Errorf("deleted = %d, want 2", got)
	}
}

func TestRunner_StartTwice(t *testing.T) {
	r := NewRunner(NewEngine(&fakeHot{}, &fakeCold{}, Config{BatchDelay: time.Millisecond}, quietLogger()), time.Hour, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if err := r.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunner_StopIdempotent(t *testing.T) {
	r := NewRunner(NewEngine(&fakeHot{}, &fakeCold{}, Config{BatchDelay: time.Millisecond}, quietLogger()), time.Hour, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
	r.Stop()
}

func TestRunner_TriggerCompletesTicket(t *testing.T) {
	hot := &fakeHot{batches: [][]*domain.Event{makeEvents(1, "b1")}}
	r := NewRunner(NewEngine(hot, &fakeCold{}, Config{BatchDelay: time.Millisecond}, quietLogger()), time.Hour, quietLogger())

	ticket, err := r.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if ticket.Status != TicketRunning {
		t.Errorf("initial status = %q, want %q", ticket.Status, TicketRunning)
	}

	waitFor(t, func() bool {
		got, ok := r.Ticket(ticket.ID)
		return ok && got.Status == TicketCompleted
	}, "ticket never completed")

	got, _ := r.Ticket(ticket.ID)
	if got.Run == nil || got.Run.EventsDeleted != 1 {
		t.Errorf("completed ticket run = %+v", got.Run)
	}
}

func TestRunner_TriggerWhilePassActive(t *testing.T) {
	hot := &blockingHot{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := NewRunner(NewEngine(hot, &fakeCold{}, Config{BatchDelay: time.Millisecond}, quietLogger()), time.Hour, quietLogger())

	first, err := r.Trigger(context.Background())
	if err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
	<-hot.entered

	if _, err := r.Trigger(context.Background()); err != ErrPassInProgress {
		t.Errorf("overlapping Trigger = %v, want ErrPassInProgress", err)
	}

	close(hot.release)
	waitFor(t, func() bool {
		got, ok := r.Ticket(first.ID)
		return ok && got.Status == TicketCompleted
	}, "first pass never finished")

	// With the gate released a new pass is accepted.
	if _, err := r.Trigger(context.Background()); err != nil {
		t.Errorf("Trigger after release: %v", err)
	}
}

func TestRunner_TicketNotFound(t *testing.T) {
	r := NewRunner(NewEngine(&fakeHot{}, &fakeCold{}, Config{BatchDelay: time.Millisecond}, quietLogger()), time.Hour, quietLogger())
	if _, ok := r.Ticket("no-such-ticket"); ok {
		t.Error("unknown ticket reported as found")
	}
}
