// Package db embeds the PostgreSQL schema for the catalog and order tables.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables. Every
// statement is idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
