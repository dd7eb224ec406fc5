// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema holds the idempotent DDL for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string
