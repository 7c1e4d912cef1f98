package memo

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/zdoge/shieldwallet/internal/field"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}

	body := Body{
		Amount:        1000,
		Secret:        SecretFieldHex(field.FromUint64(11)),
		Blinding:      SecretFieldHex(field.FromUint64(22)),
		TokenSymbol:   "DOGE",
		TokenAddress:  "0x0000000000000000000000000000000000000000",
		TokenDecimals: 18,
	}

	blob, err := Encrypt(body, priv.PublicKey())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(blob) > MaxBytes {
		t.Errorf("memo exceeds MaxBytes: %d", len(blob))
	}

	got, ok := Decrypt(blob, priv)
	if !ok {
		t.Fatal("expected decryption to succeed for the intended recipient")
	}
	if got.Amount != body.Amount || got.Secret != body.Secret {
		t.Error("decrypted body should match the original")
	}
}

func TestDecryptWrongRecipientFails(t *testing.T) {
	recipientA, _ := ecdh.P256().GenerateKey(rand.Reader)
	recipientB, _ := ecdh.P256().GenerateKey(rand.Reader)

	blob, err := Encrypt(Body{Amount: 5}, recipientA.PublicKey())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, ok := Decrypt(blob, recipientB); ok {
		t.Error("decryption under a different recipient key should fail")
	}
}

func TestViewingKeyToECDHKeyDeterministic(t *testing.T) {
	vk := field.FromUint64(424242)

	k1, err := ViewingKeyToECDHKey(vk)
	if err != nil {
		t.Fatalf("ViewingKeyToECDHKey: %v", err)
	}
	k2, err := ViewingKeyToECDHKey(vk)
	if err != nil {
		t.Fatalf("ViewingKeyToECDHKey: %v", err)
	}
	if !k1.Equal(k2) {
		t.Error("expected deterministic derivation from the same viewing key")
	}
}

func TestMemoAddressedByViewingKeyRoundTrip(t *testing.T) {
	vk := field.FromUint64(7)
	pub, err := ViewingKeyToECDHPublicKey(vk)
	if err != nil {
		t.Fatalf("ViewingKeyToECDHPublicKey: %v", err)
	}
	priv, err := ViewingKeyToECDHKey(vk)
	if err != nil {
		t.Fatalf("ViewingKeyToECDHKey: %v", err)
	}

	blob, err := Encrypt(Body{Amount: 42}, pub)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, ok := Decrypt(blob, priv)
	if !ok || got.Amount != 42 {
		t.Fatal("expected decryption keyed off the recipient's viewing key to succeed")
	}
}

func TestFieldHexRoundTrip(t *testing.T) {
	e := field.FromUint64(123456789)
	s := SecretFieldHex(e)
	got := ParseFieldHex(s)
	if !got.Equal(e) {
		t.Error("field hex round trip should be identity")
	}
}
