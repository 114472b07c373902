package database

import _ "embed"

// To regenerate schema.sql after adding a migration:
//   go generate ./internal/database

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"

// Schema is the full schema produced by applying every migration. Tests apply
// it directly to in-memory databases instead of running migrations.
//
//go:embed schema.sql
var Schema string
