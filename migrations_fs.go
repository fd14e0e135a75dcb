package pushregistry

import (
	"embed"
	"io/fs"
)

// migrationsFS contains the registry's SQL migration tree, including the
// dialect alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree for the push
// activity and rate-limit state tables.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
