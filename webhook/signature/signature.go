package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Header is the HTTP header carrying the payload signature on every
// outbound delivery
const Header = "X-Webhook-Signature"

/* Signatures are hex-encoded HMAC-SHA256 over the exact byte sequence of
 * the delivered JSON body, keyed by the subscription secret. Receivers
 * must recompute over the bytes they received, not a re-serialization
 */

// Sign computes the hex HMAC-SHA256 signature of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature using constant-time comparison
// Returns true if the signature is valid, false otherwise
func Verify(secret string, body []byte, hexSig string) (bool, error) {
	received, err := hex.DecodeString(hexSig)
	if err != nil {
		return false, fmt.Errorf("decoding signature: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	// hmac.Equal is constant time, preventing timing attacks
	return hmac.Equal(received, mac.Sum(nil)), nil
}
