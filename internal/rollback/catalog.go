package rollback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/outfit-dev/outfit/internal/plan"
)

// undoFunc derives the shell command that reverses step, or ("", reason) if
// no safe reversal exists for it. It never returns an error type: an
// un-derivable undo is a skip, not a failure, since the step itself already
// succeeded and best-effort rollback shouldn't block on it (§4.10).
type undoFunc func(step plan.Step) (cmd string, skipReason string)

// catalog maps each step type to its undo, mirroring the Plan Builder's own
// step-type dispatch (component H) in reverse.
var catalog = map[plan.StepType]undoFunc{
	plan.StepPackages:       undoPackages,
	plan.StepTool:           undoTool,
	plan.StepSource:         undoSource,
	plan.StepBuild:          undoNoop("build artifacts live under the source checkout, reversed there"),
	plan.StepInstall:        undoInstall,
	plan.StepConfigTemplate: undoConfigTemplate,
	plan.StepRepoSetup:      undoConfigTemplate,
	plan.StepService:        undoService,
	plan.StepPostInstall:    undoNoop("post_install commands are arbitrary and have no safe inverse"),
	plan.StepVerify:         undoNoop("verify has no side effects to undo"),
	plan.StepCleanup:        undoNoop("cleanup already removed its target directory"),
}

func undoNoop(reason string) undoFunc {
	return func(plan.Step) (string, string) { return "", reason }
}

// packageRemovePrefixes mirrors plan.packagesCommand's install prefixes, in
// the same order, so a remove command can be derived from the rendered
// install command text without re-deriving package-manager state.
var packageRemovePrefixes = []struct{ install, remove string }{
	{"apt-get install -y --no-install-recommends ", "apt-get remove -y "},
	{"dnf -y install ", "dnf -y remove "},
	{"yum -y install ", "yum -y remove "},
	{"apk add --no-cache ", "apk del "},
	{"pacman -S --noconfirm ", "pacman -R --noconfirm "},
	{"zypper -n install ", "zypper -n remove "},
	{"brew install ", "brew uninstall "},
}

var genericInstallPattern = regexp.MustCompile(`^(\S+)\s+install\s+(.+)$`)

func undoPackages(step plan.Step) (string, string) {
	for _, p := range packageRemovePrefixes {
		if strings.HasPrefix(step.Command, p.install) {
			return p.remove + strings.TrimPrefix(step.Command, p.install), ""
		}
	}
	if m := genericInstallPattern.FindStringSubmatch(step.Command); m != nil {
		return fmt.Sprintf("%s remove %s", m[1], m[2]), ""
	}
	return "", fmt.Sprintf("cannot derive a remove command from %q", step.Command)
}

// toolUninstallRules covers the language package managers a "tool" step's
// rendered install command may invoke (§4.5 LanguagePackageManagers); "go
// install" has no entry because go install has no uninstall counterpart.
var toolUninstallRules = []struct {
	match   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\bpip(3)?\s+install\b`), "pip$1 uninstall -y"},
	{regexp.MustCompile(`\bnpm\s+install\b`), "npm uninstall"},
	{regexp.MustCompile(`\bcargo\s+install\b`), "cargo uninstall"},
	{regexp.MustCompile(`\bgem\s+install\b`), "gem uninstall"},
}

func undoTool(step plan.Step) (string, string) {
	for _, rule := range toolUninstallRules {
		if rule.match.MatchString(step.Command) {
			return rule.match.ReplaceAllString(step.Command, rule.replace), ""
		}
	}
	return "", fmt.Sprintf("no known uninstall counterpart for %q", step.Command)
}

func undoSource(step plan.Step) (string, string) {
	if step.CWD == "" {
		return "", "source step recorded no checkout directory"
	}
	return fmt.Sprintf("rm -rf %q", step.CWD), ""
}

// undoInstall tries "make uninstall" in the original build directory first,
// falling back to deleting the installed prefix outright when that target
// doesn't exist (§4.10's literal "make uninstall if supported, else delete
// installed prefix"). The prefix is shared across tools (§4.7), so this is
// coarse by the spec's own design, not a safety margin added here.
func undoInstall(step plan.Step) (string, string) {
	if len(step.Artifacts) == 0 {
		return "", "install step recorded no prefix artifact"
	}
	prefix := step.Artifacts[0]
	if step.CWD == "" {
		return fmt.Sprintf("rm -rf %q", prefix), ""
	}
	return fmt.Sprintf("(cd %q && make uninstall) || rm -rf %q", step.CWD, prefix), ""
}

// undoConfigTemplate restores the ".outfit.bak" copy writeFileCommand left
// behind, if any, or deletes the written file when no prior version existed.
func undoConfigTemplate(step plan.Step) (string, string) {
	if len(step.Artifacts) == 0 {
		return "", "config template step recorded no artifact path"
	}
	file := step.Artifacts[0]
	bak := file + ".outfit.bak"
	return fmt.Sprintf("if [ -f %q ]; then mv %q %q; else rm -f %q; fi", bak, bak, file, file), ""
}

// serviceUndoRules mirrors plan.serviceCommand's four init-system branches.
var serviceUndoRules = []struct {
	match   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`^systemctl enable --now (\S+)$`), "systemctl disable --now $1"},
	{regexp.MustCompile(`^rc-service (\S+) start && rc-update add (\S+) default$`), "rc-service $1 stop && rc-update del $2 default"},
	{regexp.MustCompile(`^service (\S+) start$`), "service $1 stop"},
	{regexp.MustCompile(`^launchctl load -w (\S+)$`), "launchctl unload -w $1"},
}

func undoService(step plan.Step) (string, string) {
	for _, rule := range serviceUndoRules {
		if rule.match.MatchString(step.Command) {
			return rule.match.ReplaceAllString(step.Command, rule.replace), ""
		}
	}
	return "", fmt.Sprintf("no known init-system counterpart for %q", step.Command)
}
