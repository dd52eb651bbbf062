package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/Lllllllleong/expenseflow/internal/services"
	"github.com/joho/godotenv"
)

var (
	batchIngestInstance *services.BatchIngestFunction
	once                sync.Once
	initErr             error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local runs carry their settings in a .env file; deployed functions get
	// real environment variables and have nothing to load.
	_ = godotenv.Load()

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("IngestBatch", ingestBatch)
}

// main is required by the Go Functions Framework.
func main() {}

// ingestBatch is the Cloud Function entry point, fired for every object
// finalized in the intake bucket.
func ingestBatch(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		batchIngestInstance, initErr = services.NewBatchIngest(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Delegate the actual processing to our business logic method.
	if _, err := batchIngestInstance.Process(ctx, gcsEvent); err != nil {
		// The error is already logged with context within the Process method.
		// Returning it marks the function invocation as failed.
		return err
	}
	return nil
}
