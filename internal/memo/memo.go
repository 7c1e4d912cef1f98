// Package memo implements the encrypted memo that accompanies a shielded
// output: an ephemeral-key ECDH-style derivation against the recipient's
// viewing key, followed by AEAD encryption of the note body (spec.md §3
// "Encrypted memo", §6 memo wire format).
//
// Grounded in HamzaZF-PPEM's zerocash tx.go (encryptNoteForAuctioneer /
// DecryptNoteFromAuctioneer): ephemeral crypto/ecdh key, HKDF-derived
// symmetric key, AES-256-GCM, wire format
// ephemeral_pubkey || nonce || ciphertext+tag.
package memo

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/zdoge/shieldwallet/internal/field"
)

// MaxBytes is the hard upper bound on encrypted memo size, pinned per
// spec.md §9's Open Question on AEAD parameters.
const MaxBytes = 1024

// NonceSize is the AES-GCM nonce length used for every memo.
const NonceSize = 12

// ErrTooLarge is returned when an encrypted memo would exceed MaxBytes.
var ErrTooLarge = errors.New("memo: encrypted payload exceeds 1024 bytes")

// Body is the recipient-decryptable note payload carried by a memo.
type Body struct {
	Amount        uint64 `json:"amount"`
	Secret        string `json:"secret"`   // hex field element
	Blinding      string `json:"blinding"` // hex field element
	TokenSymbol   string `json:"tokenSymbol"`
	TokenAddress  string `json:"tokenAddress"`
	TokenDecimals uint8  `json:"tokenDecimals"`
}

var curve = ecdh.P256()

// Encrypt produces the wire-format ciphertext
// ephemeral_pubkey || nonce || ciphertext+tag for the given recipient
// P256 public key. Callers holding only the recipient's viewing key obtain
// that public key from ViewingKeyToECDHPublicKey; the memo can then be
// opened only with the matching private key from ViewingKeyToECDHKey.
func Encrypt(body Body, recipientPub *ecdh.PublicKey) ([]byte, error) {
	plaintext, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}

	ephemeralPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}

	shared, err := ephemeralPriv.ECDH(recipientPub)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}

	key, err := deriveSymmetricKey(shared)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	ephemeralPub := ephemeralPriv.PublicKey().Bytes()
	out := make([]byte, 0, len(ephemeralPub)+len(nonce)+len(ciphertext))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	if len(out) > MaxBytes {
		return nil, ErrTooLarge
	}
	return out, nil
}

// Decrypt attempts to open a memo using the recipient's ECDH private key.
// Per spec.md §3, a decryption attempt is a succeed/fail boolean: failure
// (wrong recipient, corrupt ciphertext) returns ok=false with no error
// surfaced to the caller, since auto-discovery tries every memo slot
// against the local identity and most attempts are expected to fail.
func Decrypt(ciphertextBlob []byte, recipientPriv *ecdh.PrivateKey) (body Body, ok bool) {
	const uncompressedP256Len = 65 // crypto/ecdh P256 uncompressed point length
	if len(ciphertextBlob) < uncompressedP256Len+NonceSize {
		return Body{}, false
	}

	ephemeralPubBytes := ciphertextBlob[:uncompressedP256Len]
	rest := ciphertextBlob[uncompressedP256Len:]
	nonce, ciphertext := rest[:NonceSize], rest[NonceSize:]

	ephemeralPub, err := curve.NewPublicKey(ephemeralPubBytes)
	if err != nil {
		return Body{}, false
	}

	shared, err := recipientPriv.ECDH(ephemeralPub)
	if err != nil {
		return Body{}, false
	}

	key, err := deriveSymmetricKey(shared)
	if err != nil {
		return Body{}, false
	}

	gcm, err := newGCM(key)
	if err != nil {
		return Body{}, false
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Body{}, false
	}

	var b Body
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return Body{}, false
	}
	return b, true
}

func deriveSymmetricKey(shared []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, shared, nil, []byte("shieldwallet-memo-v1"))
	key := make([]byte, 32) // AES-256
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}
	return gcm, nil
}

// SecretFieldHex renders a field element as the hex string the Body struct
// carries.
func SecretFieldHex(e field.Element) string {
	return fmt.Sprintf("%064x", e.BigInt())
}

// ParseFieldHex parses a hex string field as produced by SecretFieldHex.
// The memo body comes from a trial-decryption (spec.md §4.6): a malformed
// payload just yields the wrong element here rather than an error, since a
// bad candidate is rejected downstream by its commitment mismatch, not by
// this parse.
func ParseFieldHex(s string) field.Element {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return field.Zero()
	}
	return field.FromBytes(decoded)
}

// LeafIndexBytes encodes a leaf index as 8 big-endian bytes. No other
// package in this module calls it.
func LeafIndexBytes(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

// ViewingKeyToECDHKey deterministically derives the P256 scalar used to
// decrypt memos addressed to this identity from its BN254 viewing_key
// field element (spec.md §3: "ephemeral-key ECDH-style derivation from
// ephemeral scalar × recipient viewing key"). The two curves have
// different group orders, so the field element cannot be used as the P256
// scalar directly; instead it seeds an HKDF expansion that is
// rejection-sampled until it lands in the P256 private key's valid range.
func ViewingKeyToECDHKey(viewingKey field.Element) (*ecdh.PrivateKey, error) {
	const maxAttempts = 16
	for attempt := 0; attempt < maxAttempts; attempt++ {
		kdf := hkdf.New(sha256.New, viewingKey.Bytes(), nil, []byte(fmt.Sprintf("shieldwallet-memo-ecdh-v1-%d", attempt)))
		candidate := make([]byte, 32)
		if _, err := io.ReadFull(kdf, candidate); err != nil {
			return nil, fmt.Errorf("memo: derive ecdh key: %w", err)
		}
		key, err := curve.NewPrivateKey(candidate)
		if err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("memo: derive ecdh key: exhausted %d rejection-sampling attempts", maxAttempts)
}

// ViewingKeyToECDHPublicKey derives the public counterpart to
// ViewingKeyToECDHKey, used when encrypting a memo to another identity
// whose viewing key (not an ECDH public key) is all the sender knows.
func ViewingKeyToECDHPublicKey(viewingKey field.Element) (*ecdh.PublicKey, error) {
	priv, err := ViewingKeyToECDHKey(viewingKey)
	if err != nil {
		return nil, err
	}
	return priv.PublicKey(), nil
}
