// Package batch drives a queue of scanned documents through the extraction
// model at a safe rate: strictly sequential dispatch, a fixed delay between
// items, and bounded backoff retries when the model signals throttling.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/expenseflow/internal/extract"
	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned by Run when a batch pass is in progress.
// There is a single batch runner at a time, to respect external rate limits.
var ErrAlreadyRunning = errors.New("a batch run is already in progress")

// State is the ingestion lifecycle of one queued item. Completed and Failed
// are terminal for a run, but a Failed item whose cause was rate limiting is
// picked up again by the next Run.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Payload is one document submitted for extraction. The bytes are not
// duplicated into the store until the item succeeds.
type Payload struct {
	Data     []byte
	MIMEType string
	FileName string
	Kind     models.RecordKind
}

// RecordStore is the slice of the store the scheduler writes through.
type RecordStore interface {
	Save(ctx context.Context, record *models.Record, fileName string, preview []byte, mimeType string) string
	IsDuplicate(ctx context.Context, candidate *models.Record) (bool, error)
}

// ItemStatus is an immutable snapshot of one queued item.
type ItemStatus struct {
	ID        string
	FileName  string
	Kind      models.RecordKind
	State     State
	LastError string
	Attempt   int
	RecordID  string
	Duplicate bool
}

type item struct {
	id          string
	payload     Payload
	state       State
	lastError   string
	attempt     int
	rateLimited bool
	recordID    string
	duplicate   bool
}

// Config tunes a Scheduler. Zero values select the defaults, which match the
// free-tier rate budget of the extraction model (roughly 6 requests/min).
type Config struct {
	// InterItemDelay is the fixed pause between consecutive items.
	InterItemDelay time.Duration
	// BackoffBase scales the retry backoff: attempt n waits n * BackoffBase.
	BackoffBase time.Duration
	// MaxRetries bounds rate-limit retries per item per run.
	MaxRetries int
}

const (
	defaultInterItemDelay = 10 * time.Second
	defaultBackoffBase    = 20 * time.Second
	defaultMaxRetries     = 3
)

// Scheduler owns the queue of submitted documents. It is the only writer of
// item state; observers read consistent snapshots through Status.
type Scheduler struct {
	mu      sync.Mutex
	items   []*item
	running bool

	extractor extract.Extractor
	store     RecordStore
	cfg       Config

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(extractor extract.Extractor, store RecordStore, cfg Config) *Scheduler {
	if cfg.InterItemDelay <= 0 {
		cfg.InterItemDelay = defaultInterItemDelay
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Scheduler{
		extractor: extractor,
		store:     store,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// Enqueue appends payloads to the queue in submission order and returns their
// assigned item ids. An empty input is a no-op.
func (s *Scheduler) Enqueue(payloads ...Payload) []string {
	if len(payloads) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		it := &item{id: uuid.NewString(), payload: p, state: StatePending}
		s.items = append(s.items, it)
		ids = append(ids, it.id)
	}
	return ids
}

// Status returns a snapshot of every queued item, in queue order.
func (s *Scheduler) Status() []ItemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ItemStatus, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, ItemStatus{
			ID:        it.id,
			FileName:  it.payload.FileName,
			Kind:      it.payload.Kind,
			State:     it.state,
			LastError: it.lastError,
			Attempt:   it.attempt,
			RecordID:  it.recordID,
			Duplicate: it.duplicate,
		})
	}
	return out
}

// Run processes every item currently eligible (Pending, or Failed because of
// rate limiting) in queue order, blocking until the pass completes or ctx is
// cancelled. On cancellation untouched items stay Pending for a future Run.
// Per-item failures never abort the pass; Run only returns ErrAlreadyRunning
// or the cancellation cause.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	eligible := make([]*item, 0, len(s.items))
	for _, it := range s.items {
		if it.state == StatePending || (it.state == StateFailed && it.rateLimited) {
			eligible = append(eligible, it)
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	slog.Info("Starting batch run.", "eligibleItems", len(eligible))
	for i, it := range eligible {
		if err := ctx.Err(); err != nil {
			slog.Warn("Batch run cancelled.", "processedItems", i)
			return err
		}
		if err := s.processItem(ctx, it); err != nil {
			return err
		}
		// Throttle between items to keep a safe request rate. Backoff delays
		// within an item are separate from this.
		if i < len(eligible)-1 {
			if err := s.sleep(ctx, s.cfg.InterItemDelay); err != nil {
				slog.Warn("Batch run cancelled during inter-item delay.", "processedItems", i+1)
				return err
			}
		}
	}
	slog.Info("Batch run complete.", "processedItems", len(eligible))
	return nil
}

// processItem resolves a single item to Completed or Failed, retrying
// rate-limited calls in place. It returns an error only when ctx is
// cancelled mid-backoff, in which case the item reverts to Pending.
func (s *Scheduler) processItem(ctx context.Context, it *item) error {
	s.update(func() {
		it.state = StateProcessing
		it.lastError = ""
		it.attempt = 0
		it.rateLimited = false
	})
	logCtx := slog.With("itemId", it.id, "fileName", it.payload.FileName, "kind", it.payload.Kind)

	for {
		record, err := s.extractor.Extract(ctx, it.payload.Data, it.payload.MIMEType, it.payload.Kind)
		if err == nil {
			recordID := s.store.Save(ctx, record, it.payload.FileName, it.payload.Data, it.payload.MIMEType)
			record.ID = recordID
			duplicate, dupErr := s.store.IsDuplicate(ctx, record)
			if dupErr != nil {
				logCtx.Warn("Duplicate check failed, continuing without flag.", "error", dupErr)
				duplicate = false
			}
			s.update(func() {
				it.state = StateCompleted
				it.lastError = ""
				it.recordID = recordID
				it.duplicate = duplicate
			})
			logCtx.Info("Item completed.", "recordId", recordID, "duplicate", duplicate)
			return nil
		}

		if !extract.IsRateLimit(err) {
			s.update(func() {
				it.state = StateFailed
				it.rateLimited = false
				it.lastError = err.Error()
			})
			logCtx.Error("Item failed.", "error", err)
			return nil
		}

		if it.attempt >= s.cfg.MaxRetries {
			s.update(func() {
				it.state = StateFailed
				it.rateLimited = true
				it.lastError = fmt.Sprintf("rate limit exceeded after %d retries", s.cfg.MaxRetries)
			})
			logCtx.Error("Item failed: rate limit exceeded.", "retries", s.cfg.MaxRetries)
			return nil
		}

		var backoff time.Duration
		s.update(func() {
			it.attempt++
			backoff = s.cfg.BackoffBase * time.Duration(it.attempt)
			it.lastError = fmt.Sprintf("rate limit hit, waiting %s (retry %d/%d)", backoff, it.attempt, s.cfg.MaxRetries)
		})
		logCtx.Warn("Rate limit hit, backing off.", "attempt", it.attempt, "maxRetries", s.cfg.MaxRetries, "backoff", backoff.String())

		if serr := s.sleep(ctx, backoff); serr != nil {
			s.update(func() {
				it.state = StatePending
			})
			logCtx.Warn("Backoff interrupted by cancellation, item returned to queue.")
			return serr
		}
	}
}

func (s *Scheduler) update(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
