// Package tmdb derives the authenticated lookup location of a title's
// metadata on the content distribution endpoint.
package tmdb

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultKeyHex is the pre-shared HMAC key the endpoint expects.
const DefaultKeyHex = "F5DE66D2680E255B2DF79E74F890EBF349262F618BCAE2A9ACCDEE5156CE8DF2" +
	"CDF2D48C71173CDC2594465B87405D197CF1AED3B7E9671EEB56CA6753C2E6B0"

// VersionMarker is appended to every title ID before hashing and in the
// remote directory and file names.
const VersionMarker = "_00"

// ParseKey decodes a hex encoded HMAC key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode hmac key: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("hmac key is empty")
	}
	return key, nil
}

// Deriver computes per-title tokens. It is immutable after construction and
// safe for concurrent use.
type Deriver struct {
	key []byte
}

// NewDeriver copies key so later mutation by the caller has no effect.
func NewDeriver(key []byte) *Deriver {
	k := make([]byte, len(key))
	copy(k, key)
	return &Deriver{key: k}
}

// Derive returns upper-case hex HMAC-SHA1 of the upper-cased title ID plus
// the version marker.
func (d *Deriver) Derive(titleID string) string {
	mac := hmac.New(sha1.New, d.key)
	mac.Write([]byte(strings.ToUpper(titleID) + VersionMarker))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
