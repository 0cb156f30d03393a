package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func newResolver(t *testing.T, dir string, verifier Verifier) *Resolver {
	t.Helper()
	reg := recipe.NewRegistry()
	if err := reg.Load(dir); err != nil {
		t.Fatal(err)
	}
	return &Resolver{
		Registry: reg,
		DepGraph: depgraph.NewResolver(reg),
		Choices:  choice.NewResolver(time.Second),
		Verifier: verifier,
		Home:     "/home/test",
		User:     "test",
	}
}

// fakeVerifier reports a canned result instead of running a real shell
// command, so already_installed's short circuit can be exercised without
// touching the host (§8 T5/T7/T8).
type fakeVerifier struct {
	installed bool
	output    string
	err       error
}

func (v *fakeVerifier) Verify(ctx context.Context, command string) (bool, string, error) {
	return v.installed, v.output, v.err
}

func TestResolveAlreadyInstalledShortCircuits(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "ripgrep.toml", `
tool_id = "ripgrep"
[verify]
command = "rg --version"
pattern = "ripgrep (\\d+\\.\\d+\\.\\d+)"
[install]
apt = "apt-get install -y ripgrep"
`)
	r := newResolver(t, dir, &fakeVerifier{installed: true, output: "ripgrep 14.1.0"})

	resp, err := r.Resolve(context.Background(), "ripgrep", debianProfile(), nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != KindAlreadyInstalled {
		t.Fatalf("got kind %q, want already_installed", resp.Kind)
	}
	if resp.VersionInstalled != "14.1.0" {
		t.Errorf("got version %q, want 14.1.0 extracted via verify.pattern", resp.VersionInstalled)
	}
	if resp.Plan != nil {
		t.Error("already_installed response should not carry a plan")
	}
}

func TestResolveBuildsPlanWhenNotInstalled(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "ripgrep.toml", `
tool_id = "ripgrep"
[verify]
command = "rg --version"
[install]
apt = "apt-get install -y ripgrep"
`)
	r := newResolver(t, dir, &fakeVerifier{installed: false})

	resp, err := r.Resolve(context.Background(), "ripgrep", debianProfile(), nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != KindPlan {
		t.Fatalf("got kind %q, want plan", resp.Kind)
	}
	if resp.Plan == nil || len(resp.Plan.Steps) == 0 {
		t.Fatal("expected a non-empty plan")
	}
}

func TestResolveBuildsFreshPlanWhenInstalledVersionTooOld(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "ripgrep.toml", `
tool_id = "ripgrep"
minimum_version = "13.0.0"
[verify]
command = "rg --version"
pattern = "ripgrep (\\d+\\.\\d+\\.\\d+)"
[install]
apt = "apt-get install -y ripgrep"
`)
	r := newResolver(t, dir, &fakeVerifier{installed: true, output: "ripgrep 10.0.0"})

	resp, err := r.Resolve(context.Background(), "ripgrep", debianProfile(), nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != KindPlan {
		t.Fatalf("got kind %q, want a fresh upgrade plan since the installed version is below minimum_version", resp.Kind)
	}
}

func TestResolveHonorsMethodOverride(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "ripgrep.toml", `
tool_id = "ripgrep"
[verify]
command = "rg --version"
[install]
apt = "apt-get install -y ripgrep"
cargo = "cargo install ripgrep"
`)
	r := newResolver(t, dir, &fakeVerifier{installed: false})

	resp, err := r.Resolve(context.Background(), "ripgrep", debianProfile(), nil, nil, recipe.Method("cargo"))
	if err != nil {
		t.Fatal(err)
	}
	var sawCargo bool
	for _, s := range resp.Plan.Steps {
		if s.Command == "cargo install ripgrep" {
			sawCargo = true
		}
	}
	if !sawCargo {
		t.Errorf("steps = %+v, want the --method override (cargo) to pick the cargo install command", resp.Plan.Steps)
	}
}

func TestResolveUnknownToolIsAnError(t *testing.T) {
	dir := t.TempDir()
	r := newResolver(t, dir, &fakeVerifier{})
	if _, err := r.Resolve(context.Background(), "nonexistent", debianProfile(), nil, nil, ""); err == nil {
		t.Fatal("expected unknown_tool error")
	}
}

func TestExtractVersionAndSatisfies(t *testing.T) {
	if got := extractVersion(`v(\d+\.\d+\.\d+)`, "some text v1.2.3 trailer"); got != "1.2.3" {
		t.Errorf("extractVersion = %q, want 1.2.3", got)
	}
	if got := extractVersion("", "anything"); got != "" {
		t.Errorf("extractVersion with empty pattern = %q, want empty", got)
	}
	if got := extractVersion(`v(\d+\.\d+\.\d+)`, "no match here"); got != "" {
		t.Errorf("extractVersion on a miss = %q, want empty", got)
	}
}

func TestVersionSatisfiesMinimumVersion(t *testing.T) {
	rec := &recipe.Recipe{MinimumVersion: "2.0.0"}
	if versionSatisfies(rec, "1.9.0") {
		t.Error("1.9.0 should not satisfy minimum_version 2.0.0")
	}
	if !versionSatisfies(rec, "2.0.0") {
		t.Error("2.0.0 should satisfy minimum_version 2.0.0")
	}
}

func TestVersionSatisfiesUnknownConstraintTypeDefaultsTrue(t *testing.T) {
	rec := &recipe.Recipe{
		VersionConstraint: &recipe.VersionConstraint{Type: "cluster_match", Value: "whatever"},
	}
	if !versionSatisfies(rec, "1.0.0") {
		t.Error("an unevaluable constraint type should not block already_installed")
	}
}
