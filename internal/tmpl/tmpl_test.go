package tmpl

import (
	"strings"
	"testing"

	"github.com/outfit-dev/outfit/internal/recipe"
)

func TestValidateSelectAcceptsAllowedOption(t *testing.T) {
	inputs := []recipe.Input{
		{ID: "edition", Type: recipe.InputSelect, Validation: map[string]interface{}{
			"options": []interface{}{"community", "enterprise"},
		}},
	}
	got, err := Validate(inputs, Inputs{"edition": "enterprise"})
	if err != nil {
		t.Fatal(err)
	}
	if got["edition"] != "enterprise" {
		t.Errorf("got %q", got["edition"])
	}
}

func TestValidateSelectRejectsUnknownOption(t *testing.T) {
	inputs := []recipe.Input{
		{ID: "edition", Type: recipe.InputSelect, Validation: map[string]interface{}{
			"options": []interface{}{"community"},
		}},
	}
	_, err := Validate(inputs, Inputs{"edition": "pro"})
	if err == nil {
		t.Fatal("expected error for disallowed option")
	}
}

func TestValidateNumberRange(t *testing.T) {
	inputs := []recipe.Input{
		{ID: "port", Type: recipe.InputNumber, Validation: map[string]interface{}{
			"min": float64(1), "max": float64(65535), "integer": true,
		}},
	}
	if _, err := Validate(inputs, Inputs{"port": float64(70000)}); err == nil {
		t.Fatal("expected range error")
	}
	got, err := Validate(inputs, Inputs{"port": float64(8080)})
	if err != nil {
		t.Fatal(err)
	}
	if got["port"] != "8080" {
		t.Errorf("got %q", got["port"])
	}
}

func TestValidatePathRequiresAbsolute(t *testing.T) {
	inputs := []recipe.Input{{ID: "dest", Type: recipe.InputPath}}
	if _, err := Validate(inputs, Inputs{"dest": "relative/path"}); err == nil {
		t.Fatal("expected absolute-path error")
	}
}

func TestValidateUsesDefaultWhenAnswerMissing(t *testing.T) {
	inputs := []recipe.Input{{ID: "level", Type: recipe.InputText, Default: "info"}}
	got, err := Validate(inputs, Inputs{})
	if err != nil {
		t.Fatal(err)
	}
	if got["level"] != "info" {
		t.Errorf("got %q, want info", got["level"])
	}
}

func TestRenderSubstitutesBuiltinsAndInputs(t *testing.T) {
	builtins := Builtins{Home: "/home/dev", Arch: "amd64"}
	out, err := Render("prefix={home}/.local arch={arch} level={level}", map[string]string{"level": "debug"}, builtins)
	if err != nil {
		t.Fatal(err)
	}
	want := "prefix=/home/dev/.local arch=amd64 level=debug"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRenderEscapesDoubleBraces(t *testing.T) {
	out, err := Render("literal {{not_a_var}} done", nil, Builtins{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "literal {not_a_var} done" {
		t.Errorf("got %q", out)
	}
}

func TestRenderUnresolvedKeyFails(t *testing.T) {
	_, err := Render("value={missing}", nil, Builtins{})
	if err == nil {
		t.Fatal("expected template_unresolved error")
	}
	if !strings.Contains(err.Error(), "template_unresolved") {
		t.Errorf("expected kind in error, got %q", err)
	}
}
