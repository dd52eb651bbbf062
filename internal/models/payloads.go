package models

// These structs define the JSON payloads exchanged with the batch-ingest and
// history-api Cloud Functions.

// BatchManifest is the JSON document uploaded to the intake bucket to kick
// off a batch run. Each entry points at a previously uploaded document object
// in the same bucket.
type BatchManifest struct {
	BatchID string         `json:"batchId,omitempty"`
	Items   []ManifestItem `json:"items"`
}

// ManifestItem describes one document in a batch manifest.
type ManifestItem struct {
	Object   string     `json:"object"`
	FileName string     `json:"fileName,omitempty"`
	MIMEType string     `json:"mimeType"`
	Kind     RecordKind `json:"kind"`
}

// BatchIngestResponse summarises a finished batch run.
type BatchIngestResponse struct {
	Status    string   `json:"status"`
	BatchID   string   `json:"batchId"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	RecordIDs []string `json:"recordIds,omitempty"`
}

// UpdateStatusRequest is the input for the history-api status transition
// endpoint, driven by the review UI.
type UpdateStatusRequest struct {
	ID     string       `json:"id"`
	Status RecordStatus `json:"status"`
}

// DuplicateCheckResponse is the output of the history-api duplicate check.
// A positive match is advisory; the caller decides whether to proceed.
type DuplicateCheckResponse struct {
	Duplicate bool `json:"duplicate"`
}
