package method

import (
	"testing"

	"github.com/outfit-dev/outfit/internal/choice"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

func debianProfile() *sysprofile.Profile {
	return &sysprofile.Profile{
		System: "linux",
		Distro: sysprofile.Distro{Family: sysprofile.FamilyDebian},
		PackageManager: sysprofile.PackageManager{
			Primary: "apt", Available: []string{"apt"},
		},
	}
}

func TestSelectPicksNativePMOverSource(t *testing.T) {
	rec := &recipe.Recipe{
		ToolID: "ripgrep",
		Install: map[recipe.Method]string{
			recipe.MethodApt:    "apt-get install -y ripgrep",
			recipe.MethodSource: "build from source",
		},
	}
	sel, err := Select(rec, debianProfile(), "")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Method != recipe.MethodApt {
		t.Errorf("got %s, want apt", sel.Method)
	}
}

func TestSelectHonorsBoundMethod(t *testing.T) {
	rec := &recipe.Recipe{
		ToolID: "ripgrep",
		Install: map[recipe.Method]string{
			recipe.MethodApt:  "apt-get install -y ripgrep",
			recipe.MethodBrew: "brew install ripgrep",
		},
	}
	sel, err := Select(rec, debianProfile(), recipe.MethodBrew)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Method != recipe.MethodBrew {
		t.Errorf("got %s, want brew (explicit bound method)", sel.Method)
	}
}

func TestSelectNoViableMethodB1(t *testing.T) {
	rec := &recipe.Recipe{
		ToolID: "dockerish",
		Install: map[recipe.Method]string{
			recipe.MethodApt: "apt-get install -y dockerish",
		},
	}
	profile := &sysprofile.Profile{
		Distro:         sysprofile.Distro{Family: sysprofile.FamilyRHEL},
		PackageManager: sysprofile.PackageManager{Primary: "dnf", Available: []string{"dnf"}},
	}
	_, err := Select(rec, profile, "")
	if err == nil {
		t.Fatal("expected no_viable_method when apt is unavailable")
	}
}

func TestSelectSnapExcludedInContainer(t *testing.T) {
	rec := &recipe.Recipe{
		ToolID: "tool",
		Install: map[recipe.Method]string{
			recipe.MethodSnap: "snap install tool",
			recipe.MethodApt:  "apt-get install -y tool",
		},
	}
	profile := &sysprofile.Profile{
		Distro: sysprofile.Distro{Family: sysprofile.FamilyDebian},
		PackageManager: sysprofile.PackageManager{
			Primary: "apt", Available: []string{"apt", "snap"},
		},
		Capabilities: sysprofile.Capabilities{InContainer: true},
	}
	sel, err := Select(rec, profile, "")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Method != recipe.MethodApt {
		t.Errorf("got %s, want apt (snap excluded in container)", sel.Method)
	}
}

func TestSelectMethodPriorityOverride(t *testing.T) {
	rec := &recipe.Recipe{
		ToolID: "tool",
		Install: map[recipe.Method]string{
			recipe.MethodApt: "apt-get install -y tool",
			recipe.MethodPip: "pip install tool",
		},
		MethodPriority: []recipe.Method{recipe.MethodPip, recipe.MethodApt},
	}
	sel, err := Select(rec, debianProfile(), "")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Method != recipe.MethodPip {
		t.Errorf("got %s, want pip via method_priority override", sel.Method)
	}
}

func pytorchRecipe() *recipe.Recipe {
	cuda := recipe.MethodPip
	return &recipe.Recipe{
		ToolID: "pytorch",
		Choices: []recipe.Choice{
			{
				ID:   "compute",
				Type: recipe.ChoiceSingle,
				Options: []recipe.ChoiceOption{
					{ID: "cuda121", Requires: map[string]interface{}{"has_gpu": "nvidia"}},
					{ID: "rocm", Requires: map[string]interface{}{"has_gpu": "amd"}, DisabledReason: "no AMD GPU detected"},
					{ID: "cpu"},
				},
			},
		},
		InstallVariants: map[string]recipe.InstallVariant{
			"cuda121": {Command: "pip install torch+cu121", Method: &cuda},
			"rocm":    {Command: "pip install torch+rocm", Method: &cuda},
			"cpu":     {Command: "pip install torch", Method: &cuda},
		},
	}
}

func TestBoundFromExplicitInstallMethod(t *testing.T) {
	rec := pytorchRecipe()
	choices := choice.ResolvedChoices{
		"install_method": {Value: "cpu"},
	}
	if got := BoundFrom(rec, choices); got != recipe.Method("cpu") {
		t.Errorf("got %q, want cpu (explicit install_method wins)", got)
	}
}

func TestBoundFromVariantChoice(t *testing.T) {
	rec := pytorchRecipe()
	choices := choice.ResolvedChoices{
		"compute": {Value: "cuda121"},
	}
	if got := BoundFrom(rec, choices); got != recipe.Method("cuda121") {
		t.Errorf("got %q, want cuda121", got)
	}
}

func TestBoundFromUnresolvable(t *testing.T) {
	rec := pytorchRecipe()
	choices := choice.ResolvedChoices{
		"unrelated": {Value: "something"},
	}
	if got := BoundFrom(rec, choices); got != "" {
		t.Errorf("got %q, want empty (no matching variant or install_method)", got)
	}
}

func TestSelectVariantViabilityGatedByRequires(t *testing.T) {
	rec := pytorchRecipe()
	profile := &sysprofile.Profile{
		Distro: sysprofile.Distro{Family: sysprofile.FamilyDebian},
	}
	sel, err := Select(rec, profile, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range sel.Candidates {
		if c.VariantID == "cuda121" && c.Viable {
			t.Error("cuda121 should not be viable without an nvidia GPU")
		}
		if c.VariantID == "rocm" {
			if c.Viable {
				t.Error("rocm should not be viable without an amd GPU")
			}
			if c.Reason != "no AMD GPU detected" {
				t.Errorf("got reason %q, want the option's disabled_reason", c.Reason)
			}
		}
	}
}

func TestSelectVariantCandidatesDeterministic(t *testing.T) {
	rec := pytorchRecipe()
	profile := &sysprofile.Profile{Distro: sysprofile.Distro{Family: sysprofile.FamilyDebian}}

	var first []string
	for i := 0; i < 20; i++ {
		sel, err := Select(rec, profile, "")
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, c := range sel.Candidates {
			if c.IsVariant {
				ids = append(ids, c.VariantID)
			}
		}
		if first == nil {
			first = ids
			continue
		}
		if len(ids) != len(first) {
			t.Fatalf("candidate count changed across runs: %v vs %v", ids, first)
		}
		for j := range ids {
			if ids[j] != first[j] {
				t.Fatalf("candidate order is non-deterministic: %v vs %v", ids, first)
			}
		}
	}
}

func TestSelectBoundVariantUsesVariantCommand(t *testing.T) {
	rec := pytorchRecipe()
	sel, err := Select(rec, debianProfile(), recipe.Method("cuda121"))
	if err != nil {
		t.Fatal(err)
	}
	if sel.VariantID != "cuda121" {
		t.Errorf("got variant %q, want cuda121", sel.VariantID)
	}
	if sel.Command != "pip install torch+cu121" {
		t.Errorf("got command %q, want the cuda121 variant's command", sel.Command)
	}
}
