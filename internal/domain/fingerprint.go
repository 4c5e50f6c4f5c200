package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a content hash of the document's snapshot encoding.
// Equal documents always produce equal fingerprints.
func Fingerprint(d Document) (string, error) {
	data, err := Encode(d)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
