package mapsync

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// NewPinID returns a fresh pin id: a random UUID, or 16 random bytes in hex
// if that fails, or a timestamped pseudo-random id as the last resort
func NewPinID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	return fmt.Sprintf("pin-%d-%x", time.Now().UnixMilli(), mathrand.Uint64())
}
