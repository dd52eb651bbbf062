// Package extract turns raw document payloads into structured Records by
// calling the document-understanding model. It also owns the error taxonomy
// callers use to decide whether a failure is worth retrying.
package extract

import (
	"context"

	"github.com/Lllllllleong/expenseflow/internal/models"
)

// Extractor is the narrow contract the batch scheduler depends on. The kind
// hint selects the field shape (invoice vs receipt) the model extracts into.
type Extractor interface {
	Extract(ctx context.Context, payload []byte, mimeType string, kind models.RecordKind) (*models.Record, error)
}
