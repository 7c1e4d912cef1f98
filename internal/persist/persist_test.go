package persist

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}

	plaintext := []byte(`{"identity":"zdoge:abc"}`)
	blob, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, legacy, err := Open(key, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if legacy {
		t.Error("a freshly sealed blob should not be reported as legacy")
	}
	if string(got) != string(plaintext) {
		t.Error("round trip should return the original plaintext")
	}
}

func TestOpenMigratesLegacyPlaintext(t *testing.T) {
	var key [32]byte
	legacyBlob := []byte(`{"identity":"zdoge:abc"}`) // no "1:" marker

	got, legacy, err := Open(key, legacyBlob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !legacy {
		t.Error("unversioned blob should be detected as legacy")
	}
	if string(got) != string(legacyBlob) {
		t.Error("legacy plaintext should be returned as-is for migration")
	}
}

func TestOpenWrongKeyFails(t *testing.T) {
	var key, wrongKey [32]byte
	wrongKey[0] = 1

	blob, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, _, err := Open(wrongKey, blob); err == nil {
		t.Error("decrypting with the wrong key should fail")
	}
}
