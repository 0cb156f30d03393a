package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// fingerprintPattern matches a 40-character hex PGP v4 fingerprint, the
// same shape the teacher's signature verification validates before trusting
// a key (internal/actions/signature.go).
var fingerprintPattern = regexp.MustCompile(`^[0-9A-Fa-f]{40}$`)

// NormalizeFingerprint upper-cases a fingerprint for comparison.
func NormalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.ReplaceAll(fp, " ", ""))
}

// VerifyKeyringFingerprint parses armoredKey and confirms it matches
// expectedFingerprint before a repo_setup step is allowed to write it as a
// trusted keyring. This runs before the step's write command, not inside
// it — the Execution Engine's shell Runner has no PGP support of its own.
func VerifyKeyringFingerprint(armoredKey []byte, expectedFingerprint string) error {
	expected := NormalizeFingerprint(expectedFingerprint)
	if !fingerprintPattern.MatchString(expected) {
		return fmt.Errorf("artifact: invalid fingerprint format %q, want 40 hex characters", expectedFingerprint)
	}

	key, err := crypto.NewKeyFromArmored(string(armoredKey))
	if err != nil {
		return fmt.Errorf("artifact: parse PGP key: %w", err)
	}

	got := NormalizeFingerprint(key.GetFingerprint())
	if got != expected {
		return fmt.Errorf("artifact: keyring fingerprint mismatch: expected %s, got %s", expected, got)
	}
	return nil
}
