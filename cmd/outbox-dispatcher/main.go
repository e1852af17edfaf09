// outbox-dispatcher publishes committed document events from outbox_records to Pub/Sub.
//
// Usage:
//
//	PUBSUB_PROJECT_ID=... PUBSUB_TOPIC=inventory-documents DB_DRIVER=mysql DB_USER=... go run ./cmd/outbox-dispatcher
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/workflow"
)

func main() {
	once := flag.Bool("once", false, "Dispatch a single batch and exit")
	batchSize := flag.Int("batch-size", 50, "Records claimed per batch")
	maxAttempts := flag.Int("max-attempts", 20, "Attempts before a record is moved to DEAD")
	poll := flag.Duration("poll", 500*time.Millisecond, "Delay between batches")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := config.Load()
	logger := config.NewLogger(settings.LogLevel)
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not initialized: %v\n", err)
		os.Exit(1)
	}

	publisher, err := config.NewPubSubPublisher(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubsub not initialized: %v\n", err)
		os.Exit(1)
	}
	defer publisher.Close()

	dispatcher := workflow.NewOutboxDispatcher(db, logger, publisher)
	dispatcher.BatchSize = *batchSize
	dispatcher.MaxAttempts = *maxAttempts
	dispatcher.PollInterval = *poll

	if *once {
		sent, err := dispatcher.DispatchOnce(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dispatch failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("published %d records\n", sent)
		return
	}

	logger.WithField("dispatcher_id", dispatcher.DispatcherID).Info("outbox dispatcher started")
	dispatcher.Run(ctx)
	logger.Info("outbox dispatcher stopped")
}
