package dispatch

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeInstructions turns a job's hex text into printer bytes.
// Case and surrounding whitespace are ignored.
func DecodeInstructions(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return b, nil
}

// EncodeInstructions is the inverse of DecodeInstructions, in upper case as the server emits it.
func EncodeInstructions(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
