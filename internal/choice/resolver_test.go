package choice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

func profileWithNvidia() *sysprofile.Profile {
	return &sysprofile.Profile{
		System: "linux",
		Arch:   sysprofile.ArchAMD64,
		Distro: sysprofile.Distro{Family: sysprofile.FamilyDebian},
		GPU:    &sysprofile.GPU{Nvidia: sysprofile.NvidiaGPU{Present: true}},
	}
}

func TestResolveStaticChoicePicksDefault(t *testing.T) {
	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "runtime", Type: recipe.ChoiceSingle, Source: recipe.SourceStatic,
				Options: []recipe.ChoiceOption{
					{ID: "rootful", Default: true},
					{ID: "rootless"},
				},
			},
		},
	}
	res, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Choices["runtime"].Value != "rootful" {
		t.Errorf("expected default rootful, got %v", res.Choices["runtime"].Value)
	}
}

func TestResolveDisablesOptionByRequires(t *testing.T) {
	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "compute", Type: recipe.ChoiceSingle, Source: recipe.SourceStatic,
				Options: []recipe.ChoiceOption{
					{ID: "cpu", Default: true},
					{ID: "rocm", Requires: map[string]interface{}{"gpu.amd.present": true}},
				},
			},
		},
	}
	res, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Disabled) != 1 || res.Disabled[0].OptionID != "rocm" {
		t.Errorf("expected rocm to be disabled, got %+v", res.Disabled)
	}
}

func TestResolveAnswerOverridesDefault(t *testing.T) {
	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "compute", Type: recipe.ChoiceSingle, Source: recipe.SourceStatic,
				Options: []recipe.ChoiceOption{
					{ID: "cpu", Default: true},
					{ID: "cuda121"},
				},
			},
		},
	}
	res, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{"compute": "cuda121"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Choices["compute"].Value != "cuda121" {
		t.Errorf("expected answer to win, got %v", res.Choices["compute"].Value)
	}
}

func TestResolveNoAvailableOptionErrors(t *testing.T) {
	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "compute", Type: recipe.ChoiceSingle, Source: recipe.SourceStatic,
				Options: []recipe.ChoiceOption{
					{ID: "rocm", Requires: map[string]interface{}{"gpu.amd.present": true}},
				},
			},
		},
	}
	_, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{})
	if err == nil {
		t.Fatal("expected no_available_option error")
	}
}

func TestResolveDynamicFetchParsesGitHubTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"tag_name":"v2.1.0"},{"tag_name":"v2.0.0"}]`))
	}))
	defer server.Close()

	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "version", Type: recipe.ChoiceSingle, Source: recipe.SourceDynamic,
				FetchURL: server.URL, Parse: "json[].tag_name",
			},
		},
	}
	res, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{})
	if err != nil {
		t.Fatal(err)
	}
	opts := res.Choices["version"].Options
	if len(opts) != 2 || opts[0].ID != "v2.1.0" {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestResolveDynamicFetchFallsBackOnNetworkFailure(t *testing.T) {
	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "version", Type: recipe.ChoiceSingle, Source: recipe.SourceDynamic,
				FetchURL: "https://127.0.0.1:1/does-not-exist", Parse: "json[].tag_name",
				Options: []recipe.ChoiceOption{{ID: "v1.0.0", Default: true}},
			},
		},
	}
	res, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one network warning, got %d", len(res.Warnings))
	}
	if res.Choices["version"].Value != "v1.0.0" {
		t.Errorf("expected static fallback option, got %v", res.Choices["version"].Value)
	}
}

func TestResolveDynamicFetchFallsBackToSyntheticLatest(t *testing.T) {
	r := NewResolver(5 * time.Second)
	rec := &recipe.Recipe{
		Choices: []recipe.Choice{
			{
				ID: "version", Type: recipe.ChoiceSingle, Source: recipe.SourceDynamic,
				FetchURL: "https://127.0.0.1:1/does-not-exist", Parse: "json[].tag_name",
			},
		},
	}
	res, err := r.Resolve(context.Background(), rec, profileWithNvidia(), Answers{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one network warning, got %d", len(res.Warnings))
	}
	if res.Choices["version"].Value != "latest" {
		t.Errorf("expected synthetic latest option, got %v", res.Choices["version"].Value)
	}
}

func TestGitHubURLPatternsRouteToTypedClient(t *testing.T) {
	cases := []struct {
		url       string
		re        interface{ FindStringSubmatch(string) []string }
		wantOwner string
		wantRepo  string
	}{
		{"https://api.github.com/repos/docker/compose/tags", githubTagsURLRe, "docker", "compose"},
		{"https://api.github.com/repos/nvidia/cuda/releases", githubReleasesURLRe, "nvidia", "cuda"},
	}
	for _, tc := range cases {
		m := tc.re.FindStringSubmatch(tc.url)
		if m == nil {
			t.Fatalf("%q did not match its expected pattern", tc.url)
		}
		if m[1] != tc.wantOwner || m[2] != tc.wantRepo {
			t.Errorf("%q parsed as owner=%q repo=%q, want %q/%q", tc.url, m[1], m[2], tc.wantOwner, tc.wantRepo)
		}
	}

	if githubTagsURLRe.FindStringSubmatch("https://example.com/repos/a/b/tags") != nil {
		t.Error("non-GitHub host unexpectedly matched the tags pattern")
	}
}

func TestLimitItemsCapsAtLimit(t *testing.T) {
	items := []string{"a", "b", "c"}
	if got := limitItems(items, 2); len(got) != 2 {
		t.Errorf("limitItems(items, 2) returned %d items, want 2", len(got))
	}
	if got := limitItems(items, 0); len(got) != 3 {
		t.Errorf("limitItems(items, 0) returned %d items, want 3 (no cap)", len(got))
	}
}
