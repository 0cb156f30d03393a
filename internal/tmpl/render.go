package tmpl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

// Builtins carries the fixed set of `{var}` placeholders available to every
// template regardless of recipe-declared inputs (§4.4).
type Builtins struct {
	User     string
	Home     string
	Arch     string
	Distro   string
	Family   string
	NProc    int
	CPUCount int
	PipIndex string
	Version  string
}

// BuiltinsFromProfile derives the fixed template variables from a profile,
// the selected pip index (from the resolved choices, if any), and the
// resolved target version.
func BuiltinsFromProfile(p *sysprofile.Profile, home, user, pipIndex, version string) Builtins {
	nproc := 1
	if p.Hardware != nil && p.Hardware.CPUCores > 0 {
		nproc = p.Hardware.CPUCores
	}
	return Builtins{
		User:     user,
		Home:     home,
		Arch:     string(p.Arch),
		Distro:   p.Distro.ID,
		Family:   string(p.Distro.Family),
		NProc:    nproc,
		CPUCount: nproc,
		PipIndex: pipIndex,
		Version:  version,
	}
}

// asMap flattens Builtins into the same string-keyed lookup table as
// validated inputs, so Render resolves both through one map.
func (b Builtins) asMap() map[string]string {
	return map[string]string{
		"user":      b.User,
		"home":      b.Home,
		"arch":      b.Arch,
		"distro":    b.Distro,
		"family":    b.Family,
		"nproc":     strconv.Itoa(b.NProc),
		"cpu_count": strconv.Itoa(b.CPUCount),
		"pip_index": b.PipIndex,
		"version":   b.Version,
	}
}

// Render performs single-pass `{var}` substitution over tmplStr, resolving
// keys first against validated inputs, then against builtins. `{{` and `}}`
// escape to literal braces. An unresolved key aborts with template_unresolved
// naming every unresolved key found in the template, not just the first.
func Render(tmplStr string, inputs map[string]string, builtins Builtins) (string, error) {
	vars := builtins.asMap()
	for k, v := range inputs {
		vars[k] = v
	}

	var out strings.Builder
	var unresolved []string

	i := 0
	for i < len(tmplStr) {
		switch {
		case strings.HasPrefix(tmplStr[i:], "{{"):
			out.WriteByte('{')
			i += 2
		case strings.HasPrefix(tmplStr[i:], "}}"):
			out.WriteByte('}')
			i += 2
		case tmplStr[i] == '{':
			end := strings.IndexByte(tmplStr[i:], '}')
			if end == -1 {
				out.WriteString(tmplStr[i:])
				i = len(tmplStr)
				break
			}
			key := tmplStr[i+1 : i+end]
			if val, ok := vars[key]; ok {
				out.WriteString(val)
			} else {
				unresolved = append(unresolved, key)
			}
			i += end + 1
		default:
			out.WriteByte(tmplStr[i])
			i++
		}
	}

	if len(unresolved) > 0 {
		return "", outfiterr.New(outfiterr.KindTemplateUnresolved, fmt.Sprintf("unresolved template keys: %v", unresolved)).
			WithDetail("keys", unresolved)
	}
	return out.String(), nil
}
