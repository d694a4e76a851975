package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key derives the response-cache key for a (taskKind, input) pair. The
// key is a pure function of its arguments: encoding/json sorts map keys,
// giving a canonical form, and the kind is prefixed with a separator so
// distinct (kind, input) pairs cannot collide by concatenation.
func Key(taskKind string, input map[string]any) string {
	payload, err := json.Marshal(input)
	if err != nil {
		// Maps of JSON-decoded values always marshal; this branch covers
		// programmatic inputs carrying non-serializable values.
		payload = []byte(fmt.Sprintf("%#v", input))
	}

	h := sha256.New()
	h.Write([]byte(taskKind))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash derives the embedding-cache key for a piece of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
