package field

import "testing"

func TestRandomElementCanonical(t *testing.T) {
	e, err := RandomElement()
	if err != nil {
		t.Fatalf("RandomElement: %v", err)
	}
	if e.BigInt().Cmp(Modulus()) >= 0 {
		t.Error("random element should be strictly less than the field modulus")
	}
}

type fixedRng struct{ b byte }

func (r fixedRng) Fill(b []byte) error {
	for i := range b {
		b[i] = r.b
	}
	return nil
}

func TestRandomElementFromUsesInjectedRng(t *testing.T) {
	a, err := RandomElementFrom(fixedRng{b: 0x11})
	if err != nil {
		t.Fatalf("RandomElementFrom: %v", err)
	}
	b, err := RandomElementFrom(fixedRng{b: 0x11})
	if err != nil {
		t.Fatalf("RandomElementFrom: %v", err)
	}
	if !a.Equal(b) {
		t.Error("the same injected Rng output should deterministically produce the same element")
	}
	c, err := RandomElementFrom(fixedRng{b: 0x22})
	if err != nil {
		t.Fatalf("RandomElementFrom: %v", err)
	}
	if a.Equal(c) {
		t.Error("different injected Rng output should produce different elements")
	}
}

func TestFromBytesReducesModulo(t *testing.T) {
	over := Modulus().Bytes()
	e := FromBytes(over)
	if !e.IsZero() {
		t.Error("FromBytes(modulus) should reduce to zero")
	}
}

func TestAddMulDeterministic(t *testing.T) {
	a := FromUint64(3)
	b := FromUint64(4)
	if !a.Add(b).Equal(FromUint64(7)) {
		t.Error("3 + 4 should equal 7")
	}
	if !a.Mul(b).Equal(FromUint64(12)) {
		t.Error("3 * 4 should equal 12")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	e := FromUint64(123456789)
	got := FromBytes(e.Bytes())
	if !got.Equal(e) {
		t.Error("Bytes/FromBytes round trip should be identity for canonical elements")
	}
}
