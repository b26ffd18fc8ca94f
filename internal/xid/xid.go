package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed id, e.g. "sale-5f9c…". Server-generated ids share
// the UUID format clients use for offline-created records.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Valid reports whether raw looks like a client-generated record id: either
// a bare UUID or a prefixed one.
func Valid(raw string) bool {
	if _, err := uuid.Parse(raw); err == nil {
		return true
	}
	if len(raw) > 37 && raw[len(raw)-37] == '-' {
		_, err := uuid.Parse(raw[len(raw)-36:])
		return err == nil
	}
	return false
}
