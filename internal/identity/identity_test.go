package identity

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	sig := []byte("a fixed signature over the versioned message")
	a := Derive(sig)
	b := Derive(sig)

	if !a.SpendingKey.Equal(b.SpendingKey) || !a.ViewingKey.Equal(b.ViewingKey) ||
		!a.ShieldedAddress.Equal(b.ShieldedAddress) {
		t.Error("same signature must yield the identical identity triple")
	}
}

func TestDeriveDomainSeparation(t *testing.T) {
	id := Derive([]byte("sig"))
	if id.ViewingKey.Equal(id.ShieldedAddress) {
		t.Error("viewing key and shielded address must differ under domain separation")
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	id := Derive([]byte("another signature"))
	s := id.String()

	parsed, err := ParseShieldedAddress(s)
	if err != nil {
		t.Fatalf("ParseShieldedAddress: %v", err)
	}
	if !parsed.Equal(id.ShieldedAddress) {
		t.Error("parsed shielded address should match the derived one")
	}
}

func TestParseRejectsBadPrefix(t *testing.T) {
	if _, err := ParseShieldedAddress("0x" + "00"); err == nil {
		t.Error("expected error for non-zdoge prefix")
	}
}

func TestReconcileMismatchIsAuthoritative(t *testing.T) {
	sig := []byte("sig")
	fresh := Derive(sig)
	stale := Derive([]byte("different sig"))

	rederived, err := Reconcile(sig, stale.ShieldedAddress)
	if err == nil {
		t.Fatal("expected ErrMismatchRederived")
	}
	if !rederived.ShieldedAddress.Equal(fresh.ShieldedAddress) {
		t.Error("reconcile should still return the authoritative re-derived identity")
	}
}
