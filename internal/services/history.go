package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/Lllllllleong/expenseflow/internal/gcp"
	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/Lllllllleong/expenseflow/internal/store"
)

// HistoryFunction serves the record-store read/write contract consumed by
// the review UI: listing, status transitions, and advisory duplicate checks.
type HistoryFunction struct {
	recordStore *store.Store
}

// NewHistory creates a new HistoryFunction instance.
func NewHistory(ctx context.Context) (*HistoryFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := &BatchIngestConfig{
		ProjectID:      projectID,
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "records"),
		StoreBackend:   gcp.GetEnv("STORE_BACKEND", "firestore"),
		SQLitePath:     gcp.GetEnv("SQLITE_PATH", "records.db"),
	}
	backend, err := newBackend(ctx, config)
	if err != nil {
		return nil, err
	}

	return &HistoryFunction{recordStore: store.New(backend, store.Config{})}, nil
}

// NewHistoryWithStore wires the handler to an existing store, for processes
// hosting both functions.
func NewHistoryWithStore(s *store.Store) *HistoryFunction {
	return &HistoryFunction{recordStore: s}
}

// ServeHTTP routes the three history endpoints:
//
//	GET  /records            -> retention-filtered listing, newest first
//	POST /records/status     -> review status transition
//	POST /records/duplicate  -> advisory duplicate check for a candidate
func (f *HistoryFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/records":
		f.handleList(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/records/status":
		f.handleUpdateStatus(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/records/duplicate":
		f.handleDuplicateCheck(w, r)
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

func (f *HistoryFunction) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := f.recordStore.List(r.Context())
	if err != nil {
		log.Printf("ERROR: Failed to list records: %v", err)
		http.Error(w, "Internal Server Error: listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (f *HistoryFunction) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Could not decode status update: %v", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.ID == "" || !validStatus(req.Status) {
		http.Error(w, "Bad Request: id and a valid status are required", http.StatusBadRequest)
		return
	}

	if err := f.recordStore.UpdateStatus(r.Context(), req.ID, req.Status); err != nil {
		log.Printf("ERROR: Failed to update status of %s: %v", req.ID, err)
		http.Error(w, "Internal Server Error: update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *HistoryFunction) handleDuplicateCheck(w http.ResponseWriter, r *http.Request) {
	var candidate models.Record
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		log.Printf("ERROR: Could not decode duplicate candidate: %v", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	duplicate, err := f.recordStore.IsDuplicate(r.Context(), &candidate)
	if err != nil {
		log.Printf("ERROR: Duplicate check failed: %v", err)
		http.Error(w, "Internal Server Error: duplicate check failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, models.DuplicateCheckResponse{Duplicate: duplicate})
}

func validStatus(s models.RecordStatus) bool {
	switch s {
	case models.StatusDraft, models.StatusPending, models.StatusApproved, models.StatusRejected:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to write response: %v", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
