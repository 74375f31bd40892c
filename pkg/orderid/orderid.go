package orderid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const prefix = "T"

// New returns a correlation id: "T" followed by the 32 hex digits of a
// UUIDv7 (millisecond timestamp plus 74 random bits), so ids sort by
// creation time.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + hex.EncodeToString(id[:])
}
