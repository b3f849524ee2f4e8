// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema creates the storefront tables and the order insert trigger. It is
// safe to apply repeatedly.
//
//go:embed migrations/001_schema.sql
var Schema string
