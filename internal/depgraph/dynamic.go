package depgraph

import (
	"context"
	"fmt"

	"github.com/outfit-dev/outfit/internal/llm"
)

// libraryMap is tier 2 of the Dynamic Dep Resolver (§4.6): well-known
// library names mapped to their per-family system package name.
var libraryMap = map[string]map[string]string{
	"ssl": {
		"debian": "libssl-dev",
		"rhel":   "openssl-devel",
		"suse":   "openssl-devel",
		"alpine": "openssl-dev",
		"arch":   "openssl",
		"macos":  "openssl",
	},
	"curl": {
		"debian": "libcurl4-openssl-dev",
		"rhel":   "libcurl-devel",
		"suse":   "libcurl-devel",
		"alpine": "curl-dev",
		"arch":   "curl",
		"macos":  "curl",
	},
	"pkgconf": {
		"debian": "pkg-config",
		"rhel":   "pkgconf-pkg-config",
		"suse":   "pkg-config",
		"alpine": "pkgconf",
		"arch":   "pkgconf",
		"macos":  "pkg-config",
	},
}

// dynamicResolver runs the Dynamic Dep Resolver's tiers for dependency names
// with no matching recipe (§4.6). Tiers 1 and 2 are pure lookups; tier 3 is
// an optional hosted-model suggestion, enabled only when a Suggester is set
// (normally via llm.NewSuggesterFromEnv, gated on OUTFIT_LLM_SUGGESTIONS=1);
// tier 4 always succeeds, so it's the resolver's backstop, not a candidate
// for the "library-map and naming-convention guesses both fail" framing a
// fixed four-tier list would suggest — naming convention never fails here,
// it just isn't tried until the higher-confidence tiers have had a turn.
type dynamicResolver struct {
	suggester llm.Suggester
}

// resolve returns the package name to install on the given family, plus the
// tier that produced it (1-4, see resolveDynamicDep below).
func (d *dynamicResolver) resolve(ctx context.Context, depName, family, primaryPM string) (pkgName string, tier int) {
	if tier1Plausible(depName) {
		return depName, 1
	}

	if byFamily, ok := libraryMap[depName]; ok {
		if pkg, ok := byFamily[family]; ok {
			return pkg, 2
		}
	}

	if d.suggester != nil {
		if pkg, ok := d.suggester.Suggest(ctx, depName, family, primaryPM); ok {
			return pkg, 3
		}
	}

	return namingConventionGuess(depName, family), 4
}

// resolveDynamicDep is the suggester-less entry point used where no LLM tier
// is configured (the common case: the feature is off by default). It runs
// tiers 1, 2 and 4 only.
func resolveDynamicDep(depName, family, primaryPM string) (pkgName string, tier int) {
	return (&dynamicResolver{}).resolve(context.Background(), depName, family, primaryPM)
}

func namingConventionGuess(depName, family string) string {
	switch family {
	case "debian", "suse":
		return fmt.Sprintf("lib%s-dev", depName)
	case "rhel":
		return fmt.Sprintf("%s-devel", depName)
	case "alpine":
		return fmt.Sprintf("%s-dev", depName)
	default:
		return depName
	}
}

// tier1Plausible is intentionally conservative: it only short-circuits to
// the dep's own name when that name looks like a plain package identifier,
// not a library alias (those need tier 2/3/4 translation).
func tier1Plausible(depName string) bool {
	_, isKnownAlias := libraryMap[depName]
	return !isKnownAlias
}
