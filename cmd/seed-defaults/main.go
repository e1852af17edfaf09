// seed-defaults migrates the schema and creates the default transaction types,
// role accounts and MAIN warehouse. Safe to rerun.
//
// Usage:
//
//	DB_DRIVER=sqlite DB_SQLITE_PATH=./stock_ledger.db go run ./cmd/seed-defaults
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/workflow"
)

func main() {
	ctx := context.Background()
	settings := config.Load()
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not initialized: %v\n", err)
		os.Exit(1)
	}

	roleCodes := workflow.RoleAccountCodes(settings.AccountCodes)
	if err := workflow.SeedDefaults(ctx, db, roleCodes); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	for role, code := range roleCodes {
		fmt.Printf("%-20s %s\n", role, code)
	}
	fmt.Println("defaults seeded")
}
