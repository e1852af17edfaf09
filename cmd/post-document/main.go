// post-document creates or deletes inventory documents and manual vouchers from
// the command line. Documents and vouchers are read as JSON from --file (or stdin).
//
// Usage:
//
//	go run ./cmd/post-document --file receipt.json
//	go run ./cmd/post-document --voucher --file jv.json
//	go run ./cmd/post-document --delete 42
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"bitbucket.org/mmdatafocus/stock_ledger/workflow"
	"github.com/google/uuid"
)

func main() {
	file := flag.String("file", "", "JSON input file (default stdin)")
	deleteID := flag.Int("delete", 0, "Delete the document with this id")
	voucher := flag.Bool("voucher", false, "Input is a manual voucher instead of a document")
	userID := flag.Int("user", 0, "Acting user id stamped on document events")
	flag.Parse()

	ctx := context.Background()
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	if *userID > 0 {
		ctx = utils.SetUserIdInContext(ctx, *userID)
	}

	settings := config.Load()
	logger := config.NewLogger(settings.LogLevel)
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not initialized: %v\n", err)
		os.Exit(1)
	}
	redisClients, err := config.ConnectRedisWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis not initialized: %v\n", err)
		os.Exit(1)
	}

	caches := []workflow.AccountCache{}
	if lruCache, err := workflow.NewLRUAccountCache(settings.AccountCacheSize); err == nil {
		caches = append(caches, lruCache)
	}
	opts := []workflow.DocumentWorkflowOption{
		workflow.WithStockPolicies(workflow.NewStockPolicies(settings.NegativeStockPolicies)),
		workflow.WithSequencePrefixes(workflow.SequencePrefixes(settings.SequencePrefixes)),
	}
	if redisClients != nil {
		caches = append(caches, workflow.NewRedisAccountCache(redisClients.Client, settings.KeyLockTTL*10, logger))
		opts = append(opts, workflow.WithKeyLocker(workflow.NewRedisKeyLocker(redisClients.Locker, logger, settings.KeyLockTTL)))
	}
	accounts := workflow.NewGormAccountResolver(db, logger, workflow.RoleAccountCodes(settings.AccountCodes), caches...)
	documents := workflow.NewDocumentWorkflow(db, logger, accounts, opts...)

	if *deleteID > 0 {
		err := workflow.WithRetry(ctx, logger, 3, func(ctx context.Context) error {
			return documents.DeleteDocument(ctx, *deleteID)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("document %d deleted\n", *deleteID)
		return
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}

	var out any
	if *voucher {
		var input workflow.NewVoucher
		if err := json.Unmarshal(raw, &input); err != nil {
			fmt.Fprintf(os.Stderr, "decode voucher: %v\n", err)
			os.Exit(1)
		}
		err = workflow.WithRetry(ctx, logger, 3, func(ctx context.Context) error {
			v, err := workflow.CreateVoucher(ctx, db, logger, accounts, workflow.SequencePrefixes(settings.SequencePrefixes), &input)
			out = v
			return err
		})
	} else {
		var input workflow.NewInventoryDocument
		if err := json.Unmarshal(raw, &input); err != nil {
			fmt.Fprintf(os.Stderr, "decode document: %v\n", err)
			os.Exit(1)
		}
		err = workflow.WithRetry(ctx, logger, 3, func(ctx context.Context) error {
			res, err := documents.CreateDocument(ctx, &input)
			out = res
			return err
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "post failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
