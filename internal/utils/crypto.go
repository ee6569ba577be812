// internal/utils/crypto.go
package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
)

const licenseKeyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func GenerateRandomString(charset string, length int) (string, error) {
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateLicenseKey returns PREFIX-XXXX-XXXX-XXXX.
func GenerateLicenseKey(prefix string) (string, error) {
	groups := []string{prefix}
	for i := 0; i < 3; i++ {
		group, err := GenerateRandomString(licenseKeyCharset, 4)
		if err != nil {
			return "", err
		}
		groups = append(groups, group)
	}
	return strings.Join(groups, "-"), nil
}

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// CanonicalRequest is the string covered by a delivery request signature.
func CanonicalRequest(licenseKey, deviceID string, timestamp int64) string {
	return licenseKey + ":" + deviceID + ":" + strconv.FormatInt(timestamp, 10)
}

// SignRequest returns the hex HMAC-SHA256 of the canonical request string.
func SignRequest(secret []byte, licenseKey, deviceID string, timestamp int64) string {
	return hex.EncodeToString(signRaw(secret, CanonicalRequest(licenseKey, deviceID, timestamp)))
}

// VerifyRequestSignature compares in constant time. Signatures that are not
// valid hex never match.
func VerifyRequestSignature(secret []byte, licenseKey, deviceID string, timestamp int64, signature string) bool {
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(given, signRaw(secret, CanonicalRequest(licenseKey, deviceID, timestamp)))
}

func signRaw(secret []byte, message string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
