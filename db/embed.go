// Package db provides the embedded default product catalog.
package db

import _ "embed"

// DefaultCatalog is the development catalog seeded when no catalog file is
// given to the seed tool.
//
//go:embed seed/products.json
var DefaultCatalog []byte
