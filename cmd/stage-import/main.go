package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/honeycarbs/placement-pipeline/internal/config"
	"github.com/honeycarbs/placement-pipeline/internal/importfn"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
)

var (
	fn      *importfn.Function
	logger  *logging.Logger
	once    sync.Once
	initErr error
)

func init() {
	functions.CloudEvent("StageImport", stageImport)
}

// main runs the function locally; the platform invokes the registered target
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		log.Fatalf("funcframework.Start: %v", err)
	}
}

func stageImport(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		logger = logging.New(cfg.LogLevel)
		fn, _, initErr = importfn.Setup(context.Background(), cfg, logger)
	})
	if initErr != nil {
		log.Printf("stage import initialization failed: %v", initErr)
		return initErr
	}

	var gcsEvent importfn.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		logger.Error("failed to unmarshal event data", "err", err, "eventId", e.ID())
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return fn.Process(ctx, gcsEvent)
}
