package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/outfit-dev/outfit/internal/choice"
	"github.com/outfit-dev/outfit/internal/depgraph"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

func writeRecipe(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func debianProfile() *sysprofile.Profile {
	return &sysprofile.Profile{
		System: "linux",
		Distro: sysprofile.Distro{Family: sysprofile.FamilyDebian},
		PackageManager: sysprofile.PackageManager{
			Primary: "apt", Available: []string{"apt"},
		},
		Capabilities: sysprofile.Capabilities{HasSudo: true},
	}
}

func buildGraph(t *testing.T, dir, target string, profile *sysprofile.Profile) *depgraph.Graph {
	t.Helper()
	return buildGraphBound(t, dir, target, profile, "")
}

func buildGraphBound(t *testing.T, dir, target string, profile *sysprofile.Profile, boundMethod recipe.Method) *depgraph.Graph {
	t.Helper()
	reg := recipe.NewRegistry()
	if err := reg.Load(dir); err != nil {
		t.Fatal(err)
	}
	g, err := depgraph.NewResolver(reg).Resolve(target, profile, boundMethod)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestBuildEmitsPackagesAndVerify(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "ripgrep.toml", `
tool_id = "ripgrep"
[verify]
command = "rg --version"
[install]
apt = "apt-get install -y ripgrep"
`)
	profile := debianProfile()
	g := buildGraph(t, dir, "ripgrep", profile)

	b := &Builder{Profile: profile}
	p, err := b.Build(g, "ripgrep")
	if err != nil {
		t.Fatal(err)
	}

	var sawPackages, sawVerify bool
	for _, s := range p.Steps {
		if s.ID == "packages:ripgrep" {
			sawPackages = true
		}
		if s.Type == StepVerify {
			sawVerify = true
			if len(s.DependsOn) != 1 || s.DependsOn[0] != "packages:ripgrep" {
				t.Errorf("verify depends_on = %v, want [packages:ripgrep]", s.DependsOn)
			}
		}
	}
	if !sawPackages || !sawVerify {
		t.Fatalf("missing expected steps: %+v", p.Steps)
	}
	if p.RiskSummary != RiskLow {
		t.Errorf("RiskSummary = %v, want low", p.RiskSummary)
	}
	if p.ConfirmationGate != GateNone {
		t.Errorf("ConfirmationGate = %v, want none", p.ConfirmationGate)
	}
}

func TestBuildOrdersDependencyBeforeDependent(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "app.toml", `
tool_id = "app"
[verify]
command = "app --version"
[install]
apt = "apt-get install -y app"
[requires]
binaries = ["python"]
`)
	writeRecipe(t, dir, "python.toml", `
tool_id = "python"
[verify]
command = "python3 --version"
[install]
apt = "apt-get install -y python3"
`)

	profile := debianProfile()
	g := buildGraph(t, dir, "app", profile)

	b := &Builder{Profile: profile}
	p, err := b.Build(g, "app")
	if err != nil {
		t.Fatal(err)
	}

	var appStep Step
	found := false
	for _, s := range p.Steps {
		if s.ID == "packages:app" {
			appStep = s
			found = true
		}
	}
	if !found {
		t.Fatal("missing packages:app step")
	}
	dependsOnPython := false
	for _, d := range appStep.DependsOn {
		if d == "packages:python" {
			dependsOnPython = true
		}
	}
	if !dependsOnPython {
		t.Errorf("app step depends_on %v, want to include packages:python", appStep.DependsOn)
	}
}

func TestBuildRepoSetupHeuristic(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "docker.toml", `
tool_id = "docker"
[verify]
command = "docker --version"
[install]
apt = "apt-get install -y docker-ce"

[[config_templates]]
id = "apt_source"
file = "/etc/apt/sources.list.d/docker.list"
format = "raw"
body = "deb https://download.docker.com/linux/debian stable"
`)

	profile := debianProfile()
	g := buildGraph(t, dir, "docker", profile)

	b := &Builder{Profile: profile}
	p, err := b.Build(g, "docker")
	if err != nil {
		t.Fatal(err)
	}

	var repoStep *Step
	for i, s := range p.Steps {
		if s.Type == StepRepoSetup {
			repoStep = &p.Steps[i]
		}
	}
	if repoStep == nil {
		t.Fatalf("expected a repo_setup step for sources.list.d file, got %+v", p.Steps)
	}
	if len(repoStep.Artifacts) != 1 || repoStep.Artifacts[0] != "/etc/apt/sources.list.d/docker.list" {
		t.Errorf("Artifacts = %v, want [/etc/apt/sources.list.d/docker.list]", repoStep.Artifacts)
	}
	if strings.Contains(repoStep.Command, "deb https://download.docker.com") == false {
		t.Errorf("Command = %q, want rendered body embedded in a write script", repoStep.Command)
	}
	if !strings.Contains(repoStep.Command, "mv ") || !strings.Contains(repoStep.Command, ".outfit.tmp") {
		t.Errorf("Command = %q, want an atomic tmp-write-then-rename script", repoStep.Command)
	}
}

func TestBuildRejectsRepoSetupKeyringWithWrongFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "docker.toml", `
tool_id = "docker"
[verify]
command = "docker --version"
[install]
apt = "apt-get install -y docker-ce"

[[config_templates]]
id = "gpg_key"
file = "/etc/apt/keyrings/docker.gpg"
format = "raw"
body = "not actually an armored PGP key"
pgp_fingerprint = "0123456789ABCDEF0123456789ABCDEF01234567"
`)

	profile := debianProfile()
	g := buildGraph(t, dir, "docker", profile)

	b := &Builder{Profile: profile}
	if _, err := b.Build(g, "docker"); err == nil {
		t.Fatal("expected Build() to fail fingerprint verification for an unparsable keyring body")
	}
}

func TestBuildServiceStepsAndRestartSummary(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "docker.toml", `
tool_id = "docker"
[verify]
command = "docker --version"
[install]
apt = "apt-get install -y docker-ce"
[restart]
service = ["docker"]
`)

	profile := debianProfile()
	g := buildGraph(t, dir, "docker", profile)

	b := &Builder{Profile: profile}
	p, err := b.Build(g, "docker")
	if err != nil {
		t.Fatal(err)
	}

	var sawService bool
	for _, s := range p.Steps {
		if s.Type == StepService {
			sawService = true
			if s.Command != "systemctl enable --now docker" {
				t.Errorf("unexpected service command: %q", s.Command)
			}
		}
	}
	if !sawService {
		t.Fatal("expected a service step")
	}
	if len(p.Restart.ServiceRestart) != 1 || p.Restart.ServiceRestart[0] != "docker" {
		t.Errorf("Restart.ServiceRestart = %v, want [docker]", p.Restart.ServiceRestart)
	}
	if p.RiskSummary != RiskMedium {
		t.Errorf("RiskSummary = %v, want medium (service step risk)", p.RiskSummary)
	}
	if p.ConfirmationGate != GateConfirm {
		t.Errorf("ConfirmationGate = %v, want confirm", p.ConfirmationGate)
	}
}

func TestBuildExposesResolvedChoicesToTargetTemplates(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "mytool.toml", `
tool_id = "mytool"
[verify]
command = "mytool --version"
[install]
apt = "apt-get install -y mytool"

[[config_templates]]
id = "conf"
file = "/etc/mytool/mytool.conf"
format = "raw"
body = "runtime={runtime}"
`)

	profile := debianProfile()
	g := buildGraph(t, dir, "mytool", profile)

	b := &Builder{
		Profile: profile,
		Choices: &choice.Result{
			Choices: choice.ResolvedChoices{
				"runtime": {Value: "rootful"},
			},
		},
	}
	p, err := b.Build(g, "mytool")
	if err != nil {
		t.Fatal(err)
	}

	var confStep *Step
	for i, s := range p.Steps {
		if s.Type == StepConfigTemplate {
			confStep = &p.Steps[i]
		}
	}
	if confStep == nil {
		t.Fatalf("expected a config_template step, got %+v", p.Steps)
	}
	if !strings.Contains(confStep.Command, "runtime=rootful") {
		t.Errorf("Command = %q, want the resolved \"runtime\" choice rendered into the template body", confStep.Command)
	}
}

func TestChoiceVarsOnlyAppliesToTargetTool(t *testing.T) {
	b := &Builder{
		targetToolID: "app",
		Choices: &choice.Result{
			Choices: choice.ResolvedChoices{
				"runtime": {Value: "rootful"},
			},
		},
	}
	if vars := b.choiceVars("app"); vars["runtime"] != "rootful" {
		t.Errorf("choiceVars(target) = %v, want runtime=rootful", vars)
	}
	if vars := b.choiceVars("python"); vars != nil {
		t.Errorf("choiceVars(dependency) = %v, want nil — a dependency recipe must not see the target's choices", vars)
	}
}

func TestWriteFileCommandChainsPostCommand(t *testing.T) {
	cmd := writeFileCommand("sshd_config", "/etc/ssh/sshd_config.d/10-outfit.conf", "PasswordAuthentication no", "systemctl reload sshd")
	if !strings.Contains(cmd, "cat > ") || !strings.HasSuffix(cmd, "&& systemctl reload sshd") {
		t.Errorf("Command = %q, want a write-then-rename script chained with the post command", cmd)
	}
	if !strings.Contains(cmd, "mv \"/etc/ssh/sshd_config.d/10-outfit.conf.outfit.tmp\" \"/etc/ssh/sshd_config.d/10-outfit.conf\"") {
		t.Errorf("Command = %q, want rename from the tmp path into the final path", cmd)
	}
}

func TestWriteFileCommandWithoutPostCommand(t *testing.T) {
	cmd := writeFileCommand("apt_source", "/etc/apt/sources.list.d/docker.list", "deb https://example.com stable", "")
	if strings.Contains(cmd, "&&") && strings.HasSuffix(strings.TrimSpace(cmd), "&&") {
		t.Errorf("Command = %q, should not end with a dangling &&", cmd)
	}
	if strings.Count(cmd, "OUTFIT_EOF_apt_source") != 2 {
		t.Errorf("Command = %q, want the heredoc delimiter to open and close", cmd)
	}
}
