package config

import "strings"

// Environment identifies the runtime environment where pricestage operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// StorageBackend selects where pipeline snapshots are persisted.
type StorageBackend string

const (
	// BackendMemory keeps snapshots for the lifetime of the process.
	BackendMemory StorageBackend = "memory"
	// BackendFile stores snapshots as files under a directory.
	BackendFile StorageBackend = "file"
	// BackendPostgres stores snapshots and audit events in PostgreSQL.
	BackendPostgres StorageBackend = "postgres"
)

func normalizeIdentifier(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
