// Package persist implements the versioned, AEAD-encrypted storage blob
// format used for everything the wallet keeps in its KvStore: identity,
// notes, and the original signature (spec.md §3 "Encrypted persistence",
// §6 "Persisted state layout").
//
// Each blob is `version || nonce || ciphertext`. Legacy (pre-versioning)
// plaintext blobs, identified by the absence of the "1:" marker, are
// returned unchanged by Open with wasLegacy set; they reach the encrypted
// form when the caller next writes them through Seal.
package persist

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/hkdf"
	"io"
)

// CurrentVersion is the marker prefix for the current encrypted blob format.
const CurrentVersion = "1:"

// Errors surfaced by the persistence codec, matching spec.md §7's
// StorageError kind.
var (
	ErrCorrupt    = errors.New("persist: corrupt or truncated blob")
	ErrDecryption = errors.New("persist: AEAD decryption failed")
)

// Seal encrypts plaintext under key (a 32-byte AES-256 key, typically
// derived from the wallet address [, optional user password]) and returns
// the versioned blob ready to write to a KvStore.
func Seal(key [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(CurrentVersion)+len(nonce)+len(ciphertext))
	out = append(out, CurrentVersion...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open decrypts a blob previously produced by Seal, or returns a legacy
// unversioned plaintext blob unchanged with wasLegacy true (the caller is
// responsible for re-sealing and persisting it via Seal on next write).
func Open(key [32]byte, blob []byte) (plaintext []byte, wasLegacy bool, err error) {
	if !hasVersionMarker(blob) {
		return blob, true, nil
	}

	rest := blob[len(CurrentVersion):]

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, false, fmt.Errorf("persist: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, false, fmt.Errorf("persist: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, false, ErrCorrupt
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err = gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, false, nil
}

func hasVersionMarker(blob []byte) bool {
	return len(blob) >= len(CurrentVersion) && string(blob[:len(CurrentVersion)]) == CurrentVersion
}

// DeriveKey builds the AES-256 key used to Seal/Open a wallet's encrypted
// blobs from the external wallet address and an optional user password
// (spec.md §3: "a key derived from (wallet address [, optional user
// password])"). The derivation is deterministic so the same address and
// password always unlock the same blob; a changed password is, by design,
// a different key and cannot read blobs sealed under the old one.
func DeriveKey(walletAddress []byte, password string) [32]byte {
	kdf := hkdf.New(sha256.New, append(append([]byte{}, walletAddress...), password...), nil, []byte("shieldwallet-persist-key-v1"))
	var key [32]byte
	io.ReadFull(kdf, key[:])
	return key
}
