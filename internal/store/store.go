// Package store owns durable persistence of extracted Records: idempotent
// upserts, duplicate detection, retention eviction, and graceful degradation
// when the backing medium runs out of room.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/google/uuid"
)

// ErrCapacityExceeded is returned by a Backend when a write is rejected
// because of size or quota limits. Save reacts by stripping the preview
// payload and retrying once; no other error triggers degradation.
var ErrCapacityExceeded = errors.New("storage capacity exceeded")

// Backend is the minimal key-value contract a Store needs: a single
// collection of Records keyed by id. Implementations must make Put atomic
// per-record so a concurrent reader never observes a half-written entry.
type Backend interface {
	Put(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, id string) (*models.Record, error) // (nil, nil) when absent
	List(ctx context.Context) ([]*models.Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

const defaultRetention = 30 * 24 * time.Hour

// Config tunes a Store. Zero values select the defaults.
type Config struct {
	// Retention is the maximum age of a record before List evicts it.
	Retention time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store implements the record persistence contract over a Backend.
type Store struct {
	backend   Backend
	retention time.Duration
	now       func() time.Time
}

func New(backend Backend, cfg Config) *Store {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		backend:   backend,
		retention: cfg.Retention,
		now:       cfg.Now,
	}
}

// Save upserts record by id, generating one if absent, and returns the id
// under which the record was stored. When an entry with that id already
// exists the new write inherits its status, createdAt, fileName, and (absent
// a new preview) its preview. Save never returns an error: ingestion must
// not abort on a persistence hiccup, so failures are logged and, for
// capacity errors, degraded by dropping the preview and retrying once.
func (s *Store) Save(ctx context.Context, record *models.Record, fileName string, preview []byte, mimeType string) string {
	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}

	existing, err := s.backend.Get(ctx, id)
	if err != nil {
		slog.Warn("Failed to look up existing record, treating as new.", "recordId", id, "error", err)
		existing = nil
	}

	entry := record.Clone()
	entry.ID = id
	if existing != nil {
		entry.FileName = existing.FileName
		entry.Status = existing.Status
		entry.CreatedAt = existing.CreatedAt
		if len(preview) > 0 {
			entry.Preview = preview
			entry.MIMEType = mimeType
		} else {
			entry.Preview = existing.Preview
			entry.MIMEType = existing.MIMEType
		}
	} else {
		entry.FileName = fileName
		entry.Status = models.StatusDraft
		entry.CreatedAt = s.now()
		if len(preview) > 0 {
			entry.Preview = preview
			entry.MIMEType = mimeType
		}
	}

	err = s.backend.Put(ctx, entry)
	if errors.Is(err, ErrCapacityExceeded) && len(entry.Preview) > 0 {
		slog.Warn("Storage capacity exceeded, retrying save without preview.", "recordId", id)
		stripped := entry.Clone()
		stripped.Preview = nil
		stripped.MIMEType = ""
		err = s.backend.Put(ctx, stripped)
	}
	if err != nil {
		slog.Error("Failed to persist record.", "recordId", id, "error", err)
	}
	return id
}

// UpdateStatus sets the review status on the matching record. A missing id
// is a logged no-op: the review UI may race against retention eviction.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.RecordStatus) error {
	existing, err := s.backend.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if existing == nil {
		slog.Warn("Status update for unknown record, ignoring.", "recordId", id, "status", status)
		return nil
	}

	existing.Status = status
	if err := s.backend.Put(ctx, existing); err != nil {
		return fmt.Errorf("failed to update status of record %s: %w", id, err)
	}
	return nil
}

// List returns all records not older than the retention window, most recent
// first. Expired entries are evicted from the backend as a side effect; an
// eviction failure is logged and the expired entry is still excluded from
// the result.
func (s *Store) List(ctx context.Context) ([]*models.Record, error) {
	all, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	valid := make([]*models.Record, 0, len(all))
	for _, rec := range all {
		if rec.CreatedAt.After(cutoff) {
			valid = append(valid, rec)
			continue
		}
		if err := s.backend.Delete(ctx, rec.ID); err != nil {
			slog.Warn("Failed to evict expired record.", "recordId", rec.ID, "error", err)
		}
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].CreatedAt.After(valid[j].CreatedAt)
	})
	return valid, nil
}

// IsDuplicate compares candidate against all stored records except one
// sharing its own id, using kind-specific identity fields. A match is
// advisory; callers surface it as a warning, never a failure.
func (s *Store) IsDuplicate(ctx context.Context, candidate *models.Record) (bool, error) {
	records, err := s.List(ctx)
	if err != nil {
		return false, err
	}

	for _, other := range records {
		if other.ID == candidate.ID || other.Kind != candidate.Kind {
			continue
		}
		switch {
		case candidate.Kind == models.KindInvoice && candidate.Invoice != nil && other.Invoice != nil:
			if strings.EqualFold(other.Invoice.VendorName, candidate.Invoice.VendorName) &&
				strings.EqualFold(other.Invoice.InvoiceNumber, candidate.Invoice.InvoiceNumber) {
				return true, nil
			}
		case candidate.Kind == models.KindReceipt && candidate.Receipt != nil && other.Receipt != nil:
			if strings.EqualFold(other.Receipt.MerchantName, candidate.Receipt.MerchantName) &&
				other.Receipt.Date == candidate.Receipt.Date &&
				math.Abs(other.Receipt.TotalAmount-candidate.Receipt.TotalAmount) < 0.01 {
				return true, nil
			}
		}
	}
	return false, nil
}

// Clear removes every record, expired or not.
func (s *Store) Clear(ctx context.Context) error {
	all, err := s.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records for clear: %w", err)
	}
	for _, rec := range all {
		if err := s.backend.Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
