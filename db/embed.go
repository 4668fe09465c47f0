// Package db embeds the schema applied on startup.
package db

import _ "embed"

// Schema holds the DDL for the orders, receipts, notifications,
// addresses, preferences and catalog tables.
//
//go:embed migrations/001_schema.sql
var Schema string
