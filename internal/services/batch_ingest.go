package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/expenseflow/internal/batch"
	"github.com/Lllllllleong/expenseflow/internal/extract"
	"github.com/Lllllllleong/expenseflow/internal/gcp"
	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/Lllllllleong/expenseflow/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchIngestConfig holds all configuration for the batch-ingest service.
type BatchIngestConfig struct {
	ProjectID        string
	VertexAIRegion   string
	CollectionName   string
	StoreBackend     string // "firestore" or "sqlite"
	SQLitePath       string
	WorkflowID       string // empty disables the review-workflow hand-off
	WorkflowLocation string
	InterItemDelay   time.Duration
	BackoffBase      time.Duration
	MaxRetries       int
}

// BatchIngestFunction holds the dependencies for the batch ingestion logic.
type BatchIngestFunction struct {
	storageClient    *storage.Client
	extractor        extract.Extractor
	recordStore      *store.Store
	executionsClient *executions.Client
	config           BatchIngestConfig
}

// GCSEvent is the finalize notification for an object in the intake bucket.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func loadBatchIngestConfig() (*BatchIngestConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	cfg := &BatchIngestConfig{
		ProjectID:        projectID,
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "records"),
		StoreBackend:     gcp.GetEnv("STORE_BACKEND", "firestore"),
		SQLitePath:       gcp.GetEnv("SQLITE_PATH", "records.db"),
		WorkflowID:       gcp.GetEnv("REVIEW_WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		MaxRetries:       0, // scheduler default
	}

	// Rate-limit tuning is a deployment concern; bad values fall back to the
	// scheduler defaults.
	if raw := gcp.GetEnv("BATCH_ITEM_DELAY", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_ITEM_DELAY %q: %w", raw, err)
		}
		cfg.InterItemDelay = d
	}
	if raw := gcp.GetEnv("BATCH_BACKOFF_BASE", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_BACKOFF_BASE %q: %w", raw, err)
		}
		cfg.BackoffBase = d
	}

	return cfg, nil
}

// NewBatchIngest creates a new BatchIngestFunction instance.
func NewBatchIngest(ctx context.Context) (*BatchIngestFunction, error) {
	config, err := loadBatchIngestConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	backend, err := newBackend(ctx, config)
	if err != nil {
		return nil, err
	}

	f := &BatchIngestFunction{
		storageClient: storageClient,
		extractor:     extract.NewVertexExtractor(vertexClient),
		recordStore:   store.New(backend, store.Config{}),
		config:        *config,
	}

	if config.WorkflowID != "" {
		f.executionsClient, err = gcp.NewExecutionsClient(ctx)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Batch ingest logic initialized.", "storeBackend", config.StoreBackend, "reviewWorkflow", config.WorkflowID)
	return f, nil
}

func newBackend(ctx context.Context, config *BatchIngestConfig) (store.Backend, error) {
	switch config.StoreBackend {
	case "firestore":
		client, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return nil, err
		}
		return store.NewFirestoreBackend(client, config.CollectionName), nil
	case "sqlite":
		return store.OpenSQLite(config.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", config.StoreBackend)
	}
}

// Store exposes the record store for the history service sharing this process.
func (f *BatchIngestFunction) Store() *store.Store {
	return f.recordStore
}

// Process ingests one uploaded batch manifest: it downloads every referenced
// document, runs the throttled extraction pass, and hands completed records
// off to the review workflow.
func (f *BatchIngestFunction) Process(ctx context.Context, e GCSEvent) (*models.BatchIngestResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	// The intake bucket holds both document objects and manifests; only
	// manifests start a run.
	if !strings.HasPrefix(e.Name, "batches/") || path.Ext(e.Name) != ".json" {
		logCtx.Info("Object is not a batch manifest. Skipping.")
		return nil, nil
	}
	logCtx.Info("Processing batch manifest.")

	bucket := f.storageClient.Bucket(e.Bucket)
	raw, err := gcp.ReadGCSObject(ctx, bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to read manifest", "error", err)
		return nil, err
	}

	var manifest models.BatchManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		logCtx.Error("Failed to parse manifest", "error", err)
		return nil, fmt.Errorf("failed to parse manifest %s: %w", e.Name, err)
	}
	if manifest.BatchID == "" {
		manifest.BatchID = uuid.NewString()
	}
	logCtx = logCtx.With("batchId", manifest.BatchID)

	payloads, rejected, err := f.downloadPayloads(ctx, bucket, manifest.Items)
	if err != nil {
		logCtx.Error("Failed to download batch payloads", "error", err)
		return nil, err
	}
	logCtx.Info("Batch payloads ready.", "accepted", len(payloads), "rejected", rejected)

	scheduler := batch.New(f.extractor, f.recordStore, batch.Config{
		InterItemDelay: f.config.InterItemDelay,
		BackoffBase:    f.config.BackoffBase,
		MaxRetries:     f.config.MaxRetries,
	})
	scheduler.Enqueue(payloads...)

	if err := scheduler.Run(ctx); err != nil {
		logCtx.Warn("Batch run stopped early.", "error", err)
	}

	resp := summarize(manifest.BatchID, scheduler.Status())
	resp.Failed += rejected

	if err := f.triggerReviewWorkflow(ctx, logCtx, resp); err != nil {
		// The batch itself succeeded; the hand-off failure is reported but
		// does not invalidate the persisted records.
		logCtx.Error("Failed to trigger review workflow", "error", err)
	}

	logCtx.Info("Batch ingestion finished.", "completed", resp.Completed, "failed", resp.Failed)
	return resp, nil
}

// downloadPayloads fetches every manifest item concurrently, preserving
// manifest order. Items that fail preflight are dropped and counted.
func (f *BatchIngestFunction) downloadPayloads(ctx context.Context, bucket *storage.BucketHandle, items []models.ManifestItem) ([]batch.Payload, int, error) {
	downloaded := make([][]byte, len(items))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)

	for i, item := range items {
		i, item := i, item
		eg.Go(func() error {
			data, err := gcp.ReadGCSObject(gctx, bucket, item.Object)
			if err != nil {
				return fmt.Errorf("item %d (%s): %w", i, item.Object, err)
			}
			downloaded[i] = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	payloads := make([]batch.Payload, 0, len(items))
	rejected := 0
	for i, item := range items {
		if err := PreflightPayload(downloaded[i], item.MIMEType); err != nil {
			slog.Warn("Payload rejected in preflight.", "object", item.Object, "error", err)
			rejected++
			continue
		}
		fileName := item.FileName
		if fileName == "" {
			fileName = path.Base(item.Object)
		}
		payloads = append(payloads, batch.Payload{
			Data:     downloaded[i],
			MIMEType: item.MIMEType,
			FileName: fileName,
			Kind:     item.Kind,
		})
	}
	return payloads, rejected, nil
}

func summarize(batchID string, statuses []batch.ItemStatus) *models.BatchIngestResponse {
	resp := &models.BatchIngestResponse{
		Status:  "success",
		BatchID: batchID,
	}
	for _, st := range statuses {
		switch st.State {
		case batch.StateCompleted:
			resp.Completed++
			resp.RecordIDs = append(resp.RecordIDs, st.RecordID)
		case batch.StateFailed:
			resp.Failed++
		}
	}
	if resp.Failed > 0 {
		resp.Status = "partial"
	}
	return resp
}

func (f *BatchIngestFunction) triggerReviewWorkflow(ctx context.Context, logCtx *slog.Logger, resp *models.BatchIngestResponse) error {
	if f.executionsClient == nil {
		return nil
	}
	logCtx.Info("Triggering review workflow.")

	payloadBytes, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	if _, err := f.executionsClient.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}
