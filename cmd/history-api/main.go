package main

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/expenseflow/internal/services"
	"github.com/joho/godotenv"
)

var (
	historyInstance *services.HistoryFunction
	once            sync.Once
	initErr         error
)

func init() {
	_ = godotenv.Load()

	// Register the HTTP function with the framework.
	// "HandleHistory" is the entry point name we'll see in GCP.
	functions.HTTP("HandleHistory", handleHistory)
}

// main is required by the Go Functions Framework.
func main() {}

// handleHistory is the HTTP handler consumed by the review UI.
func handleHistory(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		historyInstance, initErr = services.NewHistory(context.Background())
	})
	if initErr != nil {
		log.Printf("CRITICAL: History initialization failed: %v", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	historyInstance.ServeHTTP(w, r)
}
