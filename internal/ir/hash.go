package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys.
// The version suffix leaves room for a future algorithm change.
const (
	DomainContent     = "canvaspipe/content/v1"
	DomainTranslation = "canvaspipe/translation/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentFingerprint is the structural hash of a payload: any change to any
// key or value anywhere in the tree changes the fingerprint, while key order
// and Unicode normalization do not.
func ContentFingerprint(content IRObject) (string, error) {
	canonical, err := MarshalCanonical(content)
	if err != nil {
		return "", fmt.Errorf("content fingerprint: %w", err)
	}
	return hashWithDomain(DomainContent, canonical), nil
}

// MustContentFingerprint is like ContentFingerprint but panics on error.
// Use only in tests or with payloads already known to be valid.
func MustContentFingerprint(content IRObject) string {
	fp, err := ContentFingerprint(content)
	if err != nil {
		panic(err)
	}
	return fp
}

// TranslationKey derives the cache key for a translated rendering.
// The three inputs are combined as a canonical object so no concatenation
// of (fingerprint, language, scope) can collide with another.
func TranslationKey(fingerprint, language, scopeID string) string {
	canonical, err := MarshalCanonical(IRObject{
		"fingerprint": IRString(fingerprint),
		"language":    IRString(language),
		"scope":       IRString(scopeID),
	})
	if err != nil {
		// Strings always marshal.
		panic(err)
	}
	return hashWithDomain(DomainTranslation, canonical)
}
