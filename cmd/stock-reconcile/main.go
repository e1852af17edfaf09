// stock-reconcile reports (product, warehouse) keys whose stock_items quantity
// disagrees with the ledger. With --fix each mismatching key is rebuilt.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/workflow"
	"gorm.io/gorm"
)

func main() {
	fix := flag.Bool("fix", false, "Rebuild every mismatching key")
	asJSON := flag.Bool("json", false, "Print mismatches as JSON")
	flag.Parse()

	ctx := context.Background()
	settings := config.Load()
	logger := config.NewLogger(settings.LogLevel)
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not initialized: %v\n", err)
		os.Exit(1)
	}

	mismatches, err := workflow.ReconcileStock(ctx, db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(mismatches)
	} else {
		for _, m := range mismatches {
			fmt.Printf("%s stock=%s ledger=%s running=%s\n",
				m.Key, m.StockQuantity.String(), m.LedgerQuantity.String(), m.RunningQuantity.String())
		}
		fmt.Printf("%d mismatching keys\n", len(mismatches))
	}

	if len(mismatches) == 0 || !*fix {
		if len(mismatches) > 0 {
			os.Exit(2)
		}
		return
	}

	for _, m := range mismatches {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := workflow.RebuildStockLedger(tx, logger, workflow.SequencePrefixes(settings.SequencePrefixes), m.Key)
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild %s failed: %v\n", m.Key, err)
			os.Exit(1)
		}
		fmt.Printf("rebuilt %s\n", m.Key)
	}
}
