package postgres

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates lexically sortable offer IDs.
type ULIDGenerator struct {
	prefix string
}

// NewULIDGenerator creates a generator whose IDs start with prefix, if set.
func NewULIDGenerator(prefix string) *ULIDGenerator {
	return &ULIDGenerator{prefix: prefix}
}

// Generate returns a new lowercase ULID.
func (g *ULIDGenerator) Generate() string {
	return g.prefix + strings.ToLower(ulid.Make().String())
}
