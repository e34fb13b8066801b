// Package db persists facilities and their scraped court availability.
package db

import (
	_ "embed"
)

//go:embed schema.sql
var Schema string
