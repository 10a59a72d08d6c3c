package txn

import (
	"context"
	"fmt"
	"os"

	"github.com/ndjndj/dynamoid/internal/infra/commit/dynamodb"
	"github.com/ndjndj/dynamoid/internal/infra/commit/memory"
	"github.com/ndjndj/dynamoid/internal/infra/commit/postgres"
	"github.com/ndjndj/dynamoid/internal/infra/commit/sqlite"
	"github.com/ndjndj/dynamoid/pkg/record"
)

// StoreDriver identifies a concrete commit store implementation.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"   // in-memory only (tests / ephemeral)
	StoreSQLite   StoreDriver = "sqlite"   // embedded sqlite file
	StorePostgres StoreDriver = "postgres" // PostgreSQL server
	StoreDynamoDB StoreDriver = "dynamodb" // DynamoDB TransactWriteItems
)

// CommitStore is re-exported so callers wiring transactions only need this
// package.
type CommitStore = record.CommitStore

// OpenCommitStore selects a backend using environment variables.
// Defaults to memory when unset.
//
//	DYNAMOID_STORE_DRIVER: memory|sqlite|postgres|dynamodb (default memory)
//	DYNAMOID_SQLITE_PATH: path to sqlite file (default ./dynamoid.db)
//	DYNAMOID_POSTGRES_DSN: postgres DSN when driver=postgres
//	DYNAMOID_DYNAMO_REGION / DYNAMOID_DYNAMO_ENDPOINT: when driver=dynamodb
func OpenCommitStore(ctx context.Context) (CommitStore, error) {
	driver := os.Getenv("DYNAMOID_STORE_DRIVER")
	if driver == "" {
		driver = string(StoreMemory)
	}
	switch StoreDriver(driver) {
	case StoreMemory:
		return memory.NewStore(), nil
	case StoreSQLite:
		path := os.Getenv("DYNAMOID_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StorePostgres:
		dsn := os.Getenv("DYNAMOID_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	case StoreDynamoDB:
		return dynamodb.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}
