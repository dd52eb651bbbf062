package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend with injectable write failures.
type memBackend struct {
	mu      sync.Mutex
	records map[string]*models.Record
	// failPut, when set, is consulted before every write.
	failPut func(rec *models.Record) error
}

func newMemBackend() *memBackend {
	return &memBackend{records: make(map[string]*models.Record)}
}

func (b *memBackend) Put(ctx context.Context, rec *models.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut != nil {
		if err := b.failPut(rec); err != nil {
			return err
		}
	}
	b.records[rec.ID] = rec.Clone()
	return nil
}

func (b *memBackend) Get(ctx context.Context, id string) (*models.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (b *memBackend) List(ctx context.Context) ([]*models.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (b *memBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, id)
	return nil
}

func (b *memBackend) Close() error { return nil }

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(backend *memBackend) *Store {
	return New(backend, Config{Now: func() time.Time { return testNow }})
}

func invoiceRecord(id, vendor, number string) *models.Record {
	return &models.Record{
		ID:   id,
		Kind: models.KindInvoice,
		Invoice: &models.InvoiceData{
			VendorName:    vendor,
			InvoiceNumber: number,
			GrandTotal:    100,
		},
	}
}

func receiptRecord(id, merchant, date string, total float64) *models.Record {
	return &models.Record{
		ID:   id,
		Kind: models.KindReceipt,
		Receipt: &models.ReceiptData{
			MerchantName: merchant,
			Date:         date,
			TotalAmount:  total,
		},
	}
}

func TestSaveNewRecord(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)

	id := s.Save(context.Background(), invoiceRecord("", "ACME", "INV-1"), "scan.pdf", []byte("img"), "image/png")
	require.NotEmpty(t, id)

	stored, err := backend.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.Equal(t, testNow, stored.CreatedAt)
	assert.Equal(t, "scan.pdf", stored.FileName)
	assert.Equal(t, []byte("img"), stored.Preview)
	assert.Equal(t, "image/png", stored.MIMEType)
}

func TestSaveUpsertPreservesStatusAndCreatedAt(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	id := s.Save(ctx, invoiceRecord("", "ACME", "INV-1"), "scan.pdf", []byte("img"), "image/png")
	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusApproved))

	// Re-save the edited document under the same id with different
	// incidental fields.
	edited := invoiceRecord(id, "ACME Ltd", "INV-1-corrected")
	returned := s.Save(ctx, edited, "other-name.pdf", nil, "")
	assert.Equal(t, id, returned)

	stored, err := backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status, "status survives re-save")
	assert.Equal(t, testNow, stored.CreatedAt, "createdAt survives re-save")
	assert.Equal(t, "scan.pdf", stored.FileName, "original file name survives re-save")
	assert.Equal(t, []byte("img"), stored.Preview, "preview kept when none supplied")
	assert.Equal(t, "ACME Ltd", stored.Invoice.VendorName, "document data is replaced")

	// Repeated identical saves stay stable.
	s.Save(ctx, edited, "yet-another.pdf", nil, "")
	stored, err = backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, testNow, stored.CreatedAt)
}

func TestSaveReplacesPreviewWhenSupplied(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	id := s.Save(ctx, invoiceRecord("", "ACME", "INV-1"), "scan.pdf", []byte("old"), "image/png")
	s.Save(ctx, invoiceRecord(id, "ACME", "INV-1"), "scan.pdf", []byte("new"), "image/jpeg")

	stored, err := backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), stored.Preview)
	assert.Equal(t, "image/jpeg", stored.MIMEType)
}

func TestSaveCapacityDegradationDropsPreview(t *testing.T) {
	backend := newMemBackend()
	backend.failPut = func(rec *models.Record) error {
		if len(rec.Preview) > 0 {
			return ErrCapacityExceeded
		}
		return nil
	}
	s := newTestStore(backend)

	id := s.Save(context.Background(), invoiceRecord("", "ACME", "INV-1"), "scan.pdf", []byte("huge preview"), "image/png")

	stored, err := backend.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored, "record persisted despite capacity pressure")
	assert.Nil(t, stored.Preview)
	assert.Empty(t, stored.MIMEType)
	assert.Equal(t, "ACME", stored.Invoice.VendorName)
}

func TestSaveSwallowsTerminalWriteFailure(t *testing.T) {
	backend := newMemBackend()
	backend.failPut = func(rec *models.Record) error {
		return errors.New("backend unavailable")
	}
	s := newTestStore(backend)

	// Save must not propagate the failure; ingestion continues.
	id := s.Save(context.Background(), invoiceRecord("", "ACME", "INV-1"), "scan.pdf", nil, "")
	assert.NotEmpty(t, id)

	stored, err := backend.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUpdateStatusUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(newMemBackend())
	assert.NoError(t, s.UpdateStatus(context.Background(), "missing", models.StatusApproved))
}

func TestListAppliesRetentionAndOrder(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	seed := func(id string, age time.Duration) {
		rec := invoiceRecord(id, "ACME", id)
		rec.CreatedAt = testNow.Add(-age)
		rec.Status = models.StatusDraft
		require.NoError(t, backend.Put(ctx, rec))
	}
	seed("fresh", time.Hour)
	seed("week-old", 7*24*time.Hour)
	seed("29-days", 29*24*time.Hour)
	seed("31-days", 31*24*time.Hour)

	records, err := s.List(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"fresh", "week-old", "29-days"}, ids, "newest first, expired excluded")

	// Lazy eviction removed the expired entry from the backend.
	evicted, err := backend.Get(ctx, "31-days")
	require.NoError(t, err)
	assert.Nil(t, evicted)
}

func TestIsDuplicateInvoice(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	s.Save(ctx, invoiceRecord("", "Acme Supply Co", "INV-100"), "a.pdf", nil, "")

	cases := []struct {
		name      string
		candidate *models.Record
		want      bool
	}{
		{"same vendor and number, different case", invoiceRecord("x", "ACME SUPPLY CO", "inv-100"), true},
		{"same vendor, different number", invoiceRecord("x", "Acme Supply Co", "INV-101"), false},
		{"different vendor, same number", invoiceRecord("x", "Other Vendor", "INV-100"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.IsDuplicate(ctx, tc.candidate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsDuplicateExcludesOwnID(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	id := s.Save(ctx, invoiceRecord("", "ACME", "INV-1"), "a.pdf", nil, "")

	// A record is never a duplicate of itself.
	got, err := s.IsDuplicate(ctx, invoiceRecord(id, "ACME", "INV-1"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsDuplicateReceipt(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	s.Save(ctx, receiptRecord("", "Canadian Tire", "2025-06-01", 82.47), "r.jpg", nil, "")

	cases := []struct {
		name      string
		candidate *models.Record
		want      bool
	}{
		{"amount within tolerance", receiptRecord("x", "CANADIAN TIRE", "2025-06-01", 82.475), true},
		{"amount outside tolerance", receiptRecord("x", "Canadian Tire", "2025-06-01", 82.49), false},
		{"different date", receiptRecord("x", "Canadian Tire", "2025-06-02", 82.47), false},
		{"different merchant", receiptRecord("x", "Home Depot", "2025-06-01", 82.47), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.IsDuplicate(ctx, tc.candidate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClearRemovesEverything(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend)
	ctx := context.Background()

	s.Save(ctx, invoiceRecord("", "ACME", "INV-1"), "a.pdf", nil, "")
	s.Save(ctx, receiptRecord("", "Shop", "2025-06-01", 10), "b.jpg", nil, "")

	require.NoError(t, s.Clear(ctx))
	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
