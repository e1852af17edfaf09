package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/workflow"
	"gorm.io/gorm"
)

func main() {
	productID := flag.Int("product-id", 0, "Optional: product id (requires --warehouse-id)")
	warehouseID := flag.Int("warehouse-id", 0, "Optional: warehouse id (requires --product-id)")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing keys and continue rebuilding others")
	flag.Parse()

	if (*productID > 0) != (*warehouseID > 0) {
		fmt.Fprintln(os.Stderr, "--product-id and --warehouse-id must be given together")
		os.Exit(1)
	}

	ctx := context.Background()
	settings := config.Load()
	logger := config.NewLogger(settings.LogLevel)
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not initialized: %v\n", err)
		os.Exit(1)
	}

	var keys []models.StockKey
	if *productID > 0 {
		keys = append(keys, models.StockKey{ProductId: *productID, WarehouseId: *warehouseID})
	} else {
		// every key with a stock row or ledger history
		var fromLedger []models.StockKey
		if err := db.Model(&models.StockLedgerEntry{}).Distinct("product_id", "warehouse_id").Scan(&fromLedger).Error; err != nil {
			fmt.Fprintf(os.Stderr, "discover keys: %v\n", err)
			os.Exit(1)
		}
		var fromItems []models.StockKey
		if err := db.Model(&models.StockItem{}).Select("product_id, warehouse_id").Scan(&fromItems).Error; err != nil {
			fmt.Fprintf(os.Stderr, "discover keys: %v\n", err)
			os.Exit(1)
		}
		keys = models.SortedStockKeys(append(fromLedger, fromItems...))
	}

	failed := 0
	for _, key := range keys {
		var result *workflow.RebuildResult
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = workflow.RebuildStockLedger(tx, logger, workflow.SequencePrefixes(settings.SequencePrefixes), key)
			return err
		})
		if err != nil {
			if *continueOnError {
				failed++
				fmt.Fprintf(os.Stderr, "rebuild %s failed (skipping): %v\n", key, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "rebuild %s failed: %v\n", key, err)
			os.Exit(1)
		}
		fmt.Printf("rebuilt %s entries=%d updated=%d qty=%s value=%s negative=%d\n",
			key, result.EntryCount, result.UpdatedEntries,
			result.FinalBalance.Quantity.String(), result.FinalBalance.Value.String(), len(result.NegativeEntryIds))
	}

	if failed > 0 {
		fmt.Printf("inventory rebuild finished with %d failed keys\n", failed)
		os.Exit(2)
	}
	fmt.Println("inventory rebuild complete")
}
