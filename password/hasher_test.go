package password

import (
	"errors"
	"testing"
)

func TestMigratingVerifiesLegacyAndFlagsUpgrade(t *testing.T) {
	argon, err := NewArgon2(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	bc := fastBcrypt(t)

	legacyHash, err := bc.Hash("legacy-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	m := Migrating{Primary: argon, Legacy: []Hasher{bc}}

	ok, err := m.Verify("legacy-password", legacyHash)
	if err != nil || !ok {
		t.Fatalf("expected legacy hash to verify, ok=%v err=%v", ok, err)
	}
	if up, err := m.NeedsUpgrade(legacyHash); err != nil || !up {
		t.Fatalf("expected legacy hash to need upgrade, up=%v err=%v", up, err)
	}

	fresh, err := m.Hash("legacy-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if Scheme(fresh) != "argon2id" {
		t.Fatalf("expected argon2id hash, got %q", fresh)
	}
	if up, err := m.NeedsUpgrade(fresh); err != nil || up {
		t.Fatalf("expected primary hash to be current, up=%v err=%v", up, err)
	}
}

func TestMigratingUnknownScheme(t *testing.T) {
	m := Migrating{Primary: fastBcrypt(t)}

	if _, err := m.Verify("pw", "plaintext"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if _, err := (Migrating{}).Hash("pw"); err == nil {
		t.Fatal("expected missing primary to fail")
	}
}

func TestDefaultIsBcrypt(t *testing.T) {
	if _, ok := Default().(*Bcrypt); !ok {
		t.Fatal("expected bcrypt default")
	}
}
