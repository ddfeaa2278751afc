// Command schema prints the combined PostgreSQL DDL for all modules.
// Pipe the output into psql to prepare a database:
//
//	go run ./cmd/schema | psql "$FLOWLEDGER_DATABASE_DSN"
package main

import (
	"fmt"

	accessstore "flowledger/internal/access/store"
	inststore "flowledger/internal/institution/store"
	trendstore "flowledger/internal/trend/store"
)

func main() {
	fmt.Print(accessstore.Schema)
	fmt.Print(inststore.Schema)
	fmt.Print(trendstore.Schema)
}
