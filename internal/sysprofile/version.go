package sysprofile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// digitRun finds the first run of dot-separated numeric components in a string.
var digitRun = regexp.MustCompile(`\d+(\.\d+)*`)

// NormalizeVersion strips a non-numeric prefix from tool-reported version
// strings that don't parse as semver ("go1.22.5" -> "1.22.5", "Apple clang
// 15.0.0" -> "15.0.0") so downstream comparators see a consistent shape.
// Strings with no digit run at all are returned unchanged.
func NormalizeVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	if _, err := semver.NewVersion(raw); err == nil {
		return raw
	}
	if m := digitRun.FindString(raw); m != "" {
		return m
	}
	return raw
}

// CompareVersions compares two version strings following semver, with a
// two-component fallback for distro-style versions ("22.04", "1.30") and a
// three-tuple numeric fallback for non-semver tool output that still fails to
// parse after NormalizeVersion. Returns -1, 0, or 1. Unparseable strings
// (no digit run) compare as equal to avoid spurious ordering.
func CompareVersions(a, b string) int {
	na, nb := NormalizeVersion(a), NormalizeVersion(b)

	va, errA := semver.NewVersion(padForSemver(na))
	vb, errB := semver.NewVersion(padForSemver(nb))
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}

	ta, okA := numericTuple(na)
	tb, okB := numericTuple(nb)
	if !okA || !okB {
		return 0
	}
	for i := 0; i < 3; i++ {
		if ta[i] != tb[i] {
			if ta[i] < tb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// padForSemver appends ".0" components so two-component distro versions like
// "22.04" parse as valid semver ("22.04.0").
func padForSemver(v string) string {
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}

// numericTuple extracts up to three leading dot-separated numeric components.
func numericTuple(v string) ([3]int, bool) {
	var out [3]int
	parts := strings.SplitN(v, ".", 4)
	found := false
	for i := 0; i < 3 && i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		out[i] = n
		found = true
	}
	return out, found
}

// VersionTuple parses a dotted version string into the [3]int representation
// stored on Distro.VersionTuple.
func VersionTuple(v string) [3]int {
	t, _ := numericTuple(NormalizeVersion(v))
	return t
}
