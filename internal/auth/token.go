package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateSessionToken returns a random Base64URL token (32 bytes) and its SHA256 hash as hex
func GenerateSessionToken() (token string, hashHex string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns SHA256 hex of the token
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// licenseKeyAlphabet skips 0/O and 1/I so keys can be read aloud at the front desk
const licenseKeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateLicenseKey returns a key formatted as groups of four characters, e.g. "K7QF-2MZP-X9TR-HC4D".
func GenerateLicenseKey(groups int) (string, error) {
	if groups <= 0 {
		groups = 4
	}
	raw := make([]byte, groups*4)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	var sb strings.Builder
	for i, b := range raw {
		if i > 0 && i%4 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(licenseKeyAlphabet[int(b)%len(licenseKeyAlphabet)])
	}
	return sb.String(), nil
}

// keysEqual compares license keys in constant time; keys are case-sensitive
func keysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
