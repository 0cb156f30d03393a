package artifact

import "testing"

func TestVerifyKeyringFingerprintRejectsMalformedFingerprint(t *testing.T) {
	err := VerifyKeyringFingerprint([]byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\n...\n-----END PGP PUBLIC KEY BLOCK-----"), "not-a-fingerprint")
	if err == nil {
		t.Fatal("expected an error for a malformed fingerprint")
	}
}

func TestVerifyKeyringFingerprintRejectsUnparsableKey(t *testing.T) {
	err := VerifyKeyringFingerprint([]byte("this is not a PGP key"), "0123456789ABCDEF0123456789ABCDEF01234567")
	if err == nil {
		t.Fatal("expected an error for an unparsable key")
	}
}

func TestNormalizeFingerprintUppercasesAndStripsSpaces(t *testing.T) {
	got := NormalizeFingerprint("0123 4567 89ab cdef 0123 4567 89ab cdef 0123 4567")
	want := "0123456789ABCDEF0123456789ABCDEF01234567"
	if got != want {
		t.Errorf("NormalizeFingerprint() = %q, want %q", got, want)
	}
}
