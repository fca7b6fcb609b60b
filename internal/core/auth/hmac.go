package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefix  = "bp"
	keyVersion = "v1"
)

// ParseAPIKey extracts secret_id and signature from API key format.
// Format: bp-v1-<secret_id>-<signature> (102 chars total).
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, signature string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	signature = parts[3]

	// secret_id is 32 hex chars (UUID without hyphens), signature is
	// hex-encoded HMAC-SHA256
	if len(secretID) != 32 || len(signature) != 2*sha256.Size {
		return "", "", ErrInvalidKeyFormat
	}

	for _, c := range secretID + signature {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, signature, nil
}

// ComputeHMAC computes the HMAC-SHA256 signature binding a key to its secret ID.
func ComputeHMAC(secret []byte, secretID string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(keyPrefix + "-" + keyVersion + "-" + secretID))
	return h.Sum(nil)
}

// VerifyHMAC verifies HMAC signature using constant-time comparison.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(secretID, signature string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, signature)
}

// GenerateAPIKey derives the API key for a configured secret.
// Keys are deterministic: rotating the secret is how a key is revoked.
func GenerateAPIKey(secretID string, secret []byte) string {
	return FormatAPIKey(secretID, hex.EncodeToString(ComputeHMAC(secret, secretID)))
}
