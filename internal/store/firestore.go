package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/expenseflow/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBackend persists records as documents of a single collection.
// Document writes are atomic, which gives the per-record atomicity the Store
// contract requires.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreBackend(client *firestore.Client, collection string) *FirestoreBackend {
	return &FirestoreBackend{client: client, collection: collection}
}

func (b *FirestoreBackend) Put(ctx context.Context, record *models.Record) error {
	_, err := b.client.Collection(b.collection).Doc(record.ID).Set(ctx, record)
	if err != nil {
		return fmt.Errorf("firestore set %s: %w", record.ID, translateFirestoreErr(err))
	}
	return nil
}

func (b *FirestoreBackend) Get(ctx context.Context, id string) (*models.Record, error) {
	snap, err := b.client.Collection(b.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get %s: %w", id, err)
	}

	var rec models.Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("firestore decode %s: %w", id, err)
	}
	return &rec, nil
}

func (b *FirestoreBackend) List(ctx context.Context) ([]*models.Record, error) {
	snaps, err := b.client.Collection(b.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore list: %w", err)
	}

	records := make([]*models.Record, 0, len(snaps))
	for _, snap := range snaps {
		var rec models.Record
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("firestore decode %s: %w", snap.Ref.ID, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (b *FirestoreBackend) Delete(ctx context.Context, id string) error {
	_, err := b.client.Collection(b.collection).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("firestore delete %s: %w", id, err)
	}
	return nil
}

func (b *FirestoreBackend) Close() error {
	return b.client.Close()
}

// translateFirestoreErr maps size/quota rejections onto ErrCapacityExceeded
// so the Store can run its degradation path. Oversized documents come back
// as InvalidArgument, quota exhaustion as ResourceExhausted or HTTP 429.
func translateFirestoreErr(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	case codes.InvalidArgument:
		if strings.Contains(err.Error(), "maximum") && strings.Contains(err.Error(), "size") {
			return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code == 413) {
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	}
	return err
}
