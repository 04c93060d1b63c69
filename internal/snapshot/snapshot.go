// Package snapshot produces comparable fingerprints of arbitrary state values.
// Fingerprints are canonical: two values with the same JSON content compare
// equal regardless of object key order.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Snapshot is an immutable fingerprint of a state value. Snapshots are
// comparable with ==. The zero value means "never fingerprinted" and never
// equals the fingerprint of a real value.
type Snapshot string

// IsZero reports whether s is the zero Snapshot.
func (s Snapshot) IsZero() bool {
	return s == ""
}

// Fingerprint computes the canonical fingerprint of value.
// The value is marshalled to JSON, round-tripped through generic maps so that
// object key order cannot influence the result, re-marshalled (encoding/json
// emits map keys sorted) and hashed. Values JSON cannot represent (channels,
// functions, cyclic structures) return an error: such values cannot be
// canonically compared and the caller contract is violated.
func Fingerprint(value any) (Snapshot, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("fingerprint: value is not canonically comparable: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return Snapshot(hex.EncodeToString(sum[:])), nil
}

// Equal reports whether two snapshots represent the same state. Two zero
// snapshots are not considered equal: "never fingerprinted" matches nothing.
func Equal(a, b Snapshot) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a == b
}
