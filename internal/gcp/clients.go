package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	executions "cloud.google.com/go/workflows/executions/apiv1"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// NewExecutionsClient creates a Workflows Executions client, used to hand a
// finished batch off to the review workflow.
func NewExecutionsClient(ctx context.Context) (*executions.Client, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return client, nil
}
