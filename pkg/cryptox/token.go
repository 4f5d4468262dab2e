package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Configured secrets are kept as fingerprints so the raw
// value does not linger in long-lived structs.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// MatchesFingerprint reports whether token hashes to fingerprint, in
// constant time. An empty fingerprint never matches.
func MatchesFingerprint(token, fingerprint string) bool {
	if fingerprint == "" || token == "" {
		return false
	}
	got := FingerprintToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(fingerprint)) == 1
}
