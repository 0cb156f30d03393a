package plan

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outfit-dev/outfit/internal/artifact"
	"github.com/outfit-dev/outfit/internal/choice"
	"github.com/outfit-dev/outfit/internal/condition"
	"github.com/outfit-dev/outfit/internal/depgraph"
	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
	"github.com/outfit-dev/outfit/internal/tmpl"
)

// repoSetupPathMarkers are the file-path fragments that promote a
// config_template into a repo_setup step: recipes model apt/yum repo
// registration as a templated config file (keyring or source list) rather
// than a distinct recipe field, so the builder recognizes the well-known
// locations package managers read from.
var repoSetupPathMarkers = []string{
	"sources.list.d", "yum.repos.d", "apt/trusted.gpg.d", "apt/keyrings",
	"pacman.d/gnupg",
}

// Builder assembles a resolved dependency graph into an ordered Plan.
type Builder struct {
	Profile *sysprofile.Profile
	// Choices is the Choice Resolver's output for targetToolID (the tool
	// Build is called for, not its dependencies). Its resolved values are
	// exposed to that tool's own command/config_template rendering as
	// template vars keyed by choice id, alongside Inputs.
	Choices  *choice.Result
	Answers  choice.Answers
	Inputs   map[string]map[string]string // toolID -> rendered input values
	Builtins func(toolID string) tmpl.Builtins

	targetToolID string
}

// Build assembles the plan for targetToolID from its resolved dependency
// closure g (§4.6, §4.7). Dependencies precede dependents in both step
// ordering and depends_on edges, per g.TopologicalOrder().
func (b *Builder) Build(g *depgraph.Graph, targetToolID string) (*Plan, error) {
	b.targetToolID = targetToolID
	p := &Plan{
		PlanID:  uuid.NewString(),
		Tool:    targetToolID,
		Answers: map[string]interface{}{},
	}

	var packages []string
	family := string(b.Profile.Distro.Family)
	for _, pkgs := range g.PackageBatches(family) {
		packages = append(packages, pkgs...)
	}
	sort.Strings(packages)
	packages = dedupe(packages)

	var priorStepID string
	if len(packages) > 0 {
		step := Step{
			ID:         "packages:deps",
			Type:       StepPackages,
			Label:      fmt.Sprintf("install dependency packages (%s)", family),
			Command:    packagesCommand(b.Profile.PackageManager.Primary, packages),
			NeedsSudo:  !b.Profile.Capabilities.IsRoot,
			TimeoutSec: 300,
			Risk:       RiskLow,
			Stream:     true,
		}
		p.Steps = append(p.Steps, step)
		priorStepID = step.ID
	}

	order := g.TopologicalOrder()
	lastStepByTool := make(map[string]string)

	for _, toolID := range order {
		node, ok := g.NodeOf(toolID)
		if !ok || node.Synthetic {
			continue
		}

		deps := dependsOn(node, lastStepByTool, priorStepID)
		last, err := b.appendToolSteps(p, node, deps)
		if err != nil {
			return nil, err
		}
		lastStepByTool[toolID] = last
	}

	targetLast, ok := lastStepByTool[targetToolID]
	if ok {
		verify := Step{
			ID:         "verify:" + targetToolID,
			Type:       StepVerify,
			Label:      fmt.Sprintf("verify %s", targetToolID),
			Command:    verifyCommand(g, targetToolID),
			TimeoutSec: 30,
			DependsOn:  []string{targetLast},
			Risk:       RiskLow,
			Stream:     true,
		}
		p.Steps = append(p.Steps, verify)
	}

	b.attachRiskAndRestart(p, g)
	return p, nil
}

// dependsOn returns the step ids a tool node's first step must follow: its
// recipe dependencies' final steps, plus the shared packages batch if one
// was emitted.
func dependsOn(node *depgraph.Node, lastStepByTool map[string]string, packagesStepID string) []string {
	var deps []string
	if packagesStepID != "" {
		deps = append(deps, packagesStepID)
	}
	for _, d := range node.DependsOn {
		if last, ok := lastStepByTool[d]; ok {
			deps = append(deps, last)
		}
	}
	sort.Strings(deps)
	return deps
}

// appendToolSteps emits the step sequence for one recipe node and returns
// the id of its final step (the one later steps should depend on).
func (b *Builder) appendToolSteps(p *Plan, node *depgraph.Node, deps []string) (string, error) {
	rec := node.Recipe
	sel := node.Selection
	last := ""

	switch {
	case sel.Method == recipe.MethodSource:
		var err error
		last, err = b.appendSourceSteps(p, rec, deps)
		if err != nil {
			return "", err
		}
	case recipe.SystemPackageManagers[sel.Method]:
		cmd, err := b.render(rec.ToolID, sel.Command, sel.PipIndex)
		if err != nil {
			return "", err
		}
		id := "packages:" + rec.ToolID
		p.Steps = append(p.Steps, Step{
			ID:         id,
			Type:       StepPackages,
			Label:      fmt.Sprintf("install %s", rec.ToolID),
			Command:    cmd,
			NeedsSudo:  rec.NeedsSudo.NeedsSudo(sel.Method),
			TimeoutSec: 300,
			DependsOn:  deps,
			Risk:       RiskLow,
			Stream:     true,
		})
		last = id
	default:
		cmd, err := b.render(rec.ToolID, sel.Command, sel.PipIndex)
		if err != nil {
			return "", err
		}
		id := "tool:" + rec.ToolID
		p.Steps = append(p.Steps, Step{
			ID:         id,
			Type:       StepTool,
			Label:      fmt.Sprintf("install %s via %s", rec.ToolID, sel.Method),
			Command:    cmd,
			NeedsSudo:  rec.NeedsSudo.NeedsSudo(sel.Method),
			TimeoutSec: 300,
			DependsOn:  deps,
			Risk:       RiskLow,
			Stream:     true,
			Retry:      &Retry{Max: 2, BackoffMS: 2000},
		})
		last = id
	}

	var err error
	last, err = b.appendConfigTemplates(p, rec, last)
	if err != nil {
		return "", err
	}
	last = b.appendServiceSteps(p, rec, last)
	last = b.appendPostInstall(p, rec, last)
	return last, nil
}

func (b *Builder) appendSourceSteps(p *Plan, rec *recipe.Recipe, deps []string) (string, error) {
	bfs := rec.BuildFromSource
	buildDir := fmt.Sprintf("/tmp/%s-build", rec.ToolID)
	if bfs != nil && bfs.BuildDir != "" {
		buildDir = bfs.BuildDir
	}

	for name, predicate := range bfs.RequiresToolchain {
		if ok, reason := condition.Evaluate(condition.Predicate(predicate), b.Profile); !ok {
			return "", fmt.Errorf("toolchain requirement %q not satisfied: %s", name, reason)
		}
	}

	sourceID := "source:" + rec.ToolID
	p.Steps = append(p.Steps, Step{
		ID:         sourceID,
		Type:       StepSource,
		Label:      fmt.Sprintf("fetch %s source", rec.ToolID),
		Command:    fmt.Sprintf("git clone %s %s", bfs.GitRepo, buildDir),
		CWD:        buildDir,
		DependsOn:  deps,
		TimeoutSec: 300,
		Risk:       RiskLow,
		Stream:     true,
	})

	buildCmd := buildCommand(bfs)
	buildID := "build:" + rec.ToolID
	p.Steps = append(p.Steps, Step{
		ID:         buildID,
		Type:       StepBuild,
		Label:      fmt.Sprintf("build %s", rec.ToolID),
		Command:    buildCmd,
		CWD:        buildDir,
		DependsOn:  []string{sourceID},
		TimeoutSec: 600,
		Risk:       RiskLow,
		Stream:     true,
	})

	prefix := "~/.local"
	needsSudo := false
	if b.Profile.Capabilities.HasSudo {
		prefix = "/usr/local"
		needsSudo = true
	}
	installID := "install:" + rec.ToolID
	p.Steps = append(p.Steps, Step{
		ID:           installID,
		Type:         StepInstall,
		Label:        fmt.Sprintf("install built %s", rec.ToolID),
		Command:      "make install",
		CWD:          buildDir,
		EnvOverrides: map[string]string{"PREFIX": prefix},
		DependsOn:    []string{buildID},
		NeedsSudo:    needsSudo,
		TimeoutSec:   120,
		Risk:         RiskMedium,
		Stream:       true,
		Artifacts:    []string{prefix},
	})

	cleanupID := "cleanup:" + rec.ToolID
	p.Steps = append(p.Steps, Step{
		ID:         cleanupID,
		Type:       StepCleanup,
		Label:      fmt.Sprintf("remove %s build dir", rec.ToolID),
		Command:    "rm -rf " + buildDir,
		DependsOn:  []string{installID},
		TimeoutSec: 30,
		Risk:       RiskLow,
	})

	return installID, nil
}

func buildCommand(bfs *recipe.BuildFromSource) string {
	switch bfs.BuildSystem {
	case "cmake":
		args := strings.Join(bfs.CMakeArgs, " ")
		return fmt.Sprintf("cmake -B build %s && cmake --build build", args)
	case "cargo_git":
		return "cargo build --release"
	default: // autotools
		args := strings.Join(bfs.ConfigureArgs, " ")
		return fmt.Sprintf("./configure %s && make", args)
	}
}

func (b *Builder) appendConfigTemplates(p *Plan, rec *recipe.Recipe, dep string) (string, error) {
	last := dep
	for _, ct := range rec.ConfigTemplates {
		if ct.Condition != nil {
			if ok, _ := condition.Evaluate(condition.Predicate(ct.Condition), b.Profile); !ok {
				continue
			}
		}

		body, err := b.render(rec.ToolID, ct.Body, "")
		if err != nil {
			return "", err
		}

		if ct.PGPFingerprint != "" {
			if err := artifact.VerifyKeyringFingerprint([]byte(body), ct.PGPFingerprint); err != nil {
				return "", outfiterr.Wrap(outfiterr.KindTemplateUnresolved,
					fmt.Sprintf("repo_setup keyring %q failed fingerprint verification", ct.ID), err)
			}
		}

		stepType := StepConfigTemplate
		risk := RiskMedium
		for _, marker := range repoSetupPathMarkers {
			if strings.Contains(ct.File, marker) {
				stepType = StepRepoSetup
				break
			}
		}

		id := fmt.Sprintf("%s:%s:%s", stepType, rec.ToolID, ct.ID)
		step := Step{
			ID:         id,
			Type:       stepType,
			Label:      fmt.Sprintf("write %s", path.Base(ct.File)),
			Command:    writeFileCommand(ct.ID, ct.File, body, ct.PostCommand),
			DependsOn:  []string{last},
			NeedsSudo:  isSystemPath(ct.File),
			TimeoutSec: 30,
			Risk:       risk,
			Artifacts:  []string{ct.File},
		}
		p.Steps = append(p.Steps, step)
		last = id
	}
	return last, nil
}

func (b *Builder) appendServiceSteps(p *Plan, rec *recipe.Recipe, dep string) string {
	if rec.Restart == nil || len(rec.Restart.Service) == 0 {
		return dep
	}
	last := dep
	for _, svc := range rec.Restart.Service {
		id := fmt.Sprintf("service:%s:%s", rec.ToolID, svc)
		p.Steps = append(p.Steps, Step{
			ID:         id,
			Type:       StepService,
			Label:      fmt.Sprintf("enable and start %s", svc),
			Command:    serviceCommand(b.Profile, svc),
			DependsOn:  []string{last},
			NeedsSudo:  !b.Profile.Capabilities.IsRoot,
			TimeoutSec: 30,
			Risk:       RiskMedium,
		})
		last = id
	}
	return last
}

func (b *Builder) appendPostInstall(p *Plan, rec *recipe.Recipe, dep string) string {
	if rec.Restart == nil || !rec.Restart.Shell {
		return dep
	}
	id := "post_install:" + rec.ToolID
	p.Steps = append(p.Steps, Step{
		ID:         id,
		Type:       StepPostInstall,
		Label:      fmt.Sprintf("update shell profile for %s", rec.ToolID),
		DependsOn:  []string{dep},
		TimeoutSec: 10,
		Risk:       RiskLow,
	})
	return id
}

func (b *Builder) render(toolID, tmplStr, pipIndex string) (string, error) {
	if tmplStr == "" {
		return "", nil
	}
	builtins := tmpl.Builtins{}
	if b.Builtins != nil {
		builtins = b.Builtins(toolID)
	}
	if pipIndex != "" {
		builtins.PipIndex = pipIndex
	}

	inputs := make(map[string]string, len(b.Inputs[toolID]))
	for k, v := range b.choiceVars(toolID) {
		inputs[k] = v
	}
	for k, v := range b.Inputs[toolID] {
		inputs[k] = v
	}
	return tmpl.Render(tmplStr, inputs, builtins)
}

// choiceVars exposes the resolved choice values for toolID's own template
// rendering (e.g. E1's docker_variant answer reaching a config_template
// body), keyed by choice id. Dependency recipes never see the target's
// choices — each recipe's own choices, if it has any, are its own concern.
func (b *Builder) choiceVars(toolID string) map[string]string {
	if b.Choices == nil || toolID != b.targetToolID {
		return nil
	}
	vars := make(map[string]string, len(b.Choices.Choices))
	for id, resolved := range b.Choices.Choices {
		switch v := resolved.Value.(type) {
		case string:
			vars[id] = v
		case []string:
			vars[id] = strings.Join(v, ",")
		}
	}
	return vars
}

func (b *Builder) attachRiskAndRestart(p *Plan, g *depgraph.Graph) {
	summary := RiskLow
	var reasons []string
	services := map[string]bool{}
	shell := false
	reboot := false

	for _, s := range p.Steps {
		summary = maxRisk(summary, s.Risk)
	}
	for _, toolID := range g.TopologicalOrder() {
		node, ok := g.NodeOf(toolID)
		if !ok || node.Synthetic || node.Recipe.Restart == nil {
			continue
		}
		r := node.Recipe.Restart
		if r.Shell {
			shell = true
			reasons = append(reasons, fmt.Sprintf("%s modifies PATH via post_install", toolID))
		}
		if r.Reboot {
			reboot = true
			reasons = append(reasons, fmt.Sprintf("%s installs kernel-level components", toolID))
		}
		for _, svc := range r.Service {
			services[svc] = true
		}
	}

	var serviceList []string
	for svc := range services {
		serviceList = append(serviceList, svc)
	}
	sort.Strings(serviceList)
	if len(serviceList) > 0 {
		reasons = append(reasons, fmt.Sprintf("services to restart: %s", strings.Join(serviceList, ", ")))
	}

	p.RiskSummary = summary
	p.Restart = RestartSummary{
		ShellRestart:   shell,
		RebootRequired: reboot,
		ServiceRestart: serviceList,
		Reasons:        reasons,
	}
	switch summary {
	case RiskHigh:
		p.ConfirmationGate = GateTypeToConfirm
	case RiskMedium:
		p.ConfirmationGate = GateConfirm
	default:
		p.ConfirmationGate = GateNone
	}
}

func verifyCommand(g *depgraph.Graph, toolID string) string {
	node, ok := g.NodeOf(toolID)
	if !ok || node.Recipe == nil || node.Recipe.Verify.Command == "" {
		return toolID + " --version"
	}
	return node.Recipe.Verify.Command
}

func packagesCommand(primaryPM string, pkgs []string) string {
	list := strings.Join(pkgs, " ")
	switch primaryPM {
	case "apt":
		return "apt-get install -y --no-install-recommends " + list
	case "dnf":
		return "dnf -y install " + list
	case "yum":
		return "yum -y install " + list
	case "apk":
		return "apk add --no-cache " + list
	case "pacman":
		return "pacman -S --noconfirm " + list
	case "zypper":
		return "zypper -n install " + list
	case "brew":
		return "brew install " + list
	default:
		return primaryPM + " install " + list
	}
}

func serviceCommand(profile *sysprofile.Profile, svc string) string {
	initType := sysprofile.InitSystemd
	if profile.InitSystem != nil {
		initType = profile.InitSystem.Type
	}
	switch initType {
	case sysprofile.InitSystemd:
		return fmt.Sprintf("systemctl enable --now %s", svc)
	case sysprofile.InitOpenRC:
		return fmt.Sprintf("rc-service %s start && rc-update add %s default", svc, svc)
	case sysprofile.InitInitd:
		return fmt.Sprintf("service %s start", svc)
	case sysprofile.InitLaunchd:
		return fmt.Sprintf("launchctl load -w /Library/LaunchDaemons/%s.plist", svc)
	default:
		return fmt.Sprintf("echo 'no init system available to manage %s'", svc)
	}
}

func isSystemPath(p string) bool {
	return strings.HasPrefix(p, "/etc") || strings.HasPrefix(p, "/usr") || strings.HasPrefix(p, "/opt")
}

// writeFileCommand builds the shell command a config_template/repo_setup
// step runs: back up whatever currently sits at file (so rollback can
// restore it), write the rendered body to a tmp file in the same
// directory, then rename it into place so readers never observe a partial
// write, then optionally chain postCommand (e.g. "systemctl reload sshd").
// The heredoc delimiter is derived from the template ID so sibling
// templates in the same plan can't collide with each other. The backup
// path (file + ".outfit.bak") is what the Rollback Engine's config_template
// undo looks for.
func writeFileCommand(id, file, body, postCommand string) string {
	tmp := file + ".outfit.tmp"
	bak := file + ".outfit.bak"
	delim := "OUTFIT_EOF_" + strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, id)

	var b strings.Builder
	fmt.Fprintf(&b, "mkdir -p %q && { [ -f %q ] && cp %q %q || true; } && cat > %q <<'%s'\n", path.Dir(file), file, file, bak, tmp, delim)
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\nmv %q %q", delim, tmp, file)
	if postCommand != "" {
		fmt.Fprintf(&b, " && %s", postCommand)
	}
	return b.String()
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
