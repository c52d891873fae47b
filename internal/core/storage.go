package core

import (
	"fmt"
	"os"

	"patientcore/internal/infra/persistence/memory"
	"patientcore/internal/infra/persistence/postgres"
	"patientcore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	// StorageMemory keeps state in process memory only (tests / ephemeral).
	StorageMemory StorageDriver = "memory"
	// StorageSQLite snapshots to an embedded sqlite file.
	StorageSQLite StorageDriver = "sqlite"
	// StoragePostgres snapshots to a PostgreSQL server.
	StoragePostgres StorageDriver = "postgres"
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	PATIENTCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	PATIENTCORE_SQLITE_PATH: path to sqlite file (default ./patientcore.db)
//	PATIENTCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore() (PersistentStore, error) {
	driver := os.Getenv("PATIENTCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("PATIENTCORE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("PATIENTCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
