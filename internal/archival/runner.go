package archival

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("archival runner already running")
	// ErrPassInProgress is returned by Trigger while a pass is executing.
	// Overlapping passes would select the same window twice.
	ErrPassInProgress = errors.New("archival pass already in progress")
)

// Ticket tracks one triggered archival pass. Status moves from
// TicketRunning to TicketCompleted; the Run is attached on completion.
type Ticket struct {
	ID          string    `json:"ticket_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Run         *Run      `json:"run,omitempty"`
}

const (
	TicketRunning   = "running"
	TicketCompleted = "completed"
)

// ticketHistory caps how many finished tickets are kept for status lookups.
const ticketHistory = 50

// Runner executes archival passes on a fixed interval and on demand. Scheduled
// and manual passes share one gate so at most one pass runs at a time.
type Runner struct {
	engine   *Engine
	interval time.Duration
	log      *log.Logger

	mu         sync.Mutex
	running    bool
	passActive bool
	stop       chan struct{}
	done       chan struct{}
	tickets    map[string]*Ticket
	order      []string
	lastRun    *Run
}

// NewRunner wraps the engine in a periodic runner. A non-positive interval
// defaults to one hour.
func NewRunner(engine *Engine, interval time.Duration, logger *log.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		engine:   engine,
		interval: interval,
		log:      logger,
		tickets:  make(map[string]*Ticket),
	}
}

// Start launches the periodic loop. The first pass runs immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.runScheduled(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runScheduled(ctx)
		}
	}
}

func (r *Runner) runScheduled(ctx context.Context) {
	if !r.acquirePass() {
		r.log.Printf("archival: scheduled pass skipped, another pass in progress")
		return
	}
	run := r.engine.ArchiveOldEvents(ctx)
	r.finishPass(nil, run)
}

// Trigger starts a pass in the background and returns a ticket immediately.
// The caller polls Ticket for the outcome.
func (r *Runner) Trigger(ctx context.Context) (*Ticket, error) {
	if !r.acquirePass() {
		return nil, ErrPassInProgress
	}

	t := &Ticket{
		ID:          uuid.NewString(),
		Status:      TicketRunning,
		SubmittedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.tickets[t.ID] = t
	r.order = append(r.order, t.ID)
	r.trimLocked()
	r.mu.Unlock()

	go func() {
		// Detach from the request context: the pass outlives the HTTP call
		// that triggered it.
		run := r.engine.ArchiveOldEvents(context.WithoutCancel(ctx))
		r.finishPass(t, run)
	}()

	snapshot := *t
	return &snapshot, nil
}

// Ticket returns a snapshot of the ticket with the given id.
func (r *Runner) Ticket(id string) (*Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, false
	}
	snapshot := *t
	return &snapshot, true
}

// LastRun returns the most recently completed run, or nil before the first.
func (r *Runner) LastRun() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *Runner) acquirePass() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.passActive {
		return false
	}
	r.passActive = true
	return true
}

func (r *Runner) finishPass(t *Ticket, run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passActive = false
	r.lastRun = run
	if t != nil {
		t.Status = TicketCompleted
		t.Run = run
	}
}

func (r *Runner) trimLocked() {
	for len(r.order) > ticketHistory {
		delete(r.tickets, r.order[0])
		r.order = r.order[1:]
	}
}
