// Package verify provides cryptographic verification of downloaded
// release artifacts: SHA-256 checksum comparison and minisign
// detached-signature verification against a compiled-in trusted key.
//
// Both checks are pure apart from reading the target file, and both
// report failure as false rather than an error so the download
// orchestrator can treat any failure as "try the next source".
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedisct1/go-minisign"
)

// Checksum computes the SHA-256 digest of the file at path and
// compares it case-insensitively to the expected hex string.
func Checksum(path, expectedHex string) bool {
	if expectedHex == "" {
		return false
	}
	actual, err := Sha256(path)
	if err != nil {
		return false
	}
	return strings.EqualFold(actual, expectedHex)
}

// Sha256 returns the hex-encoded SHA-256 digest of a file.
func Sha256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Signature verifies a minisign detached signature over the exact
// bytes of the file at path, against the given base64 public key.
// Any parse failure or mismatch returns false; this boundary never
// propagates an error.
func Signature(path string, sig []byte, publicKey string) bool {
	pk, err := minisign.NewPublicKey(strings.TrimSpace(publicKey))
	if err != nil {
		return false
	}

	decoded, err := minisign.DecodeSignature(string(sig))
	if err != nil {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	ok, err := pk.Verify(data, decoded)
	return err == nil && ok
}

// KeyVerifier bundles both checks against the production trusted key.
// It satisfies the download orchestrator's Verifier interface.
type KeyVerifier struct {
	key string
}

// NewKeyVerifier returns a verifier bound to the compiled-in upstream
// signing key. There is no constructor that accepts another key: the
// root of trust is fixed at build time.
func NewKeyVerifier() *KeyVerifier {
	return &KeyVerifier{key: TrustedPublicKey}
}

// Checksum implements the orchestrator's checksum check.
func (v *KeyVerifier) Checksum(path, expectedHex string) bool {
	return Checksum(path, expectedHex)
}

// Signature implements the orchestrator's signature check.
func (v *KeyVerifier) Signature(path string, sig []byte) bool {
	return Signature(path, sig, v.key)
}

// String identifies the verifier in diagnostics without exposing key
// material beyond its public form.
func (v *KeyVerifier) String() string {
	return fmt.Sprintf("minisign(%s)", v.key)
}
