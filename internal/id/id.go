// Package id generates opaque, prefixed identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the entities this service creates.
const (
	PrefixTag      = "tag"
	PrefixRevision = "rev"
)

// Generate returns prefix + "-" + a 21 character NanoID, e.g. "tag-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("id: generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// NewTag returns a fresh tag id.
func NewTag() (string, error) { return Generate(PrefixTag) }

// NewRevision returns a fresh revision id.
func NewRevision() (string, error) { return Generate(PrefixRevision) }
