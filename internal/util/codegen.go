package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// SessionIDPrefix namespaces every minted session id. The payload after the
// marker is base64url without padding, so the whole id is copy-paste safe.
const SessionIDPrefix = "RAHL-QUANTUM;;;"

const (
	pairingCodeMin = 100000
	pairingCodeMax = 999999

	sessionPayloadBytes = 16
)

// GeneratePairingCode returns a 6-digit numeric code drawn uniformly from
// [100000, 999999] using a cryptographically strong source.
func GeneratePairingCode() (string, error) {
	span := big.NewInt(pairingCodeMax - pairingCodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+pairingCodeMin), nil
}

// GenerateSessionID returns SessionIDPrefix followed by 128 bits of random
// payload in the URL-safe alphabet.
func GenerateSessionID() (string, error) {
	payload := make([]byte, sessionPayloadBytes)
	if _, err := rand.Read(payload); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return SessionIDPrefix + base64.RawURLEncoding.EncodeToString(payload), nil
}

// MaskCode hides the tail of a code for logging.
func MaskCode(code string) string {
	if len(code) <= 2 {
		return "****"
	}
	return code[:2] + "****"
}
