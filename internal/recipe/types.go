// Package recipe defines the declarative Recipe schema (spec §3) and the
// read-only Registry that loads and indexes recipes keyed by tool id
// (component A, spec §4.1). Recipes are authored as TOML documents,
// following the teacher's recipe-as-TOML convention (BurntSushi/toml),
// generalized from the teacher's action-step schema to this spec's
// method/choice/input/dependency schema.
package recipe

import (
	"fmt"
	"sort"
)

// Method identifies an installation method (§3, §4.5 GLOSSARY).
type Method string

// The closed set of methods a recipe's install/install_variants may name.
const (
	MethodApt      Method = "apt"
	MethodDnf      Method = "dnf"
	MethodYum      Method = "yum"
	MethodApk      Method = "apk"
	MethodPacman   Method = "pacman"
	MethodZypper   Method = "zypper"
	MethodBrew     Method = "brew"
	MethodSnap     Method = "snap"
	MethodPip      Method = "pip"
	MethodNpm      Method = "npm"
	MethodCargo    Method = "cargo"
	MethodGo       Method = "go"
	MethodBinary   Method = "binary"
	MethodCurlPipe Method = "curl_pipe"
	MethodSource   Method = "source"
	MethodDefault  Method = "_default"
)

// SystemPackageManagers are methods whose command shape is fixed per §4.7.
var SystemPackageManagers = map[Method]bool{
	MethodApt: true, MethodDnf: true, MethodYum: true, MethodApk: true,
	MethodPacman: true, MethodZypper: true, MethodBrew: true, MethodSnap: true,
}

// LanguagePackageManagers require their runtime binary present (§4.5 step 2).
var LanguagePackageManagers = map[Method]bool{
	MethodPip: true, MethodNpm: true, MethodCargo: true, MethodGo: true,
}

// Recipe is the canonical declarative unit, keyed by ToolID (§3).
type Recipe struct {
	ToolID          string                     `toml:"tool_id"`
	Label           string                     `toml:"label"`
	Category        string                     `toml:"category"`
	Verify          VerifySpec                 `toml:"verify"`
	Install         map[Method]string          `toml:"install"`
	InstallVariants map[string]InstallVariant  `toml:"install_variants"`
	Requires        Requirements               `toml:"requires"`
	NeedsSudo       SudoRule                   `toml:"needs_sudo"`
	Choices         []Choice                   `toml:"choices"`
	Inputs          []Input                    `toml:"inputs"`
	ConfigTemplates []ConfigTemplate           `toml:"config_templates"`
	DataPackChoice  *DataPackChoiceHeader      `toml:"data_pack_choice,omitempty"`
	DataPacks       []DataPack                 `toml:"data_packs,omitempty"`
	BuildFromSource *BuildFromSource           `toml:"build_from_source,omitempty"`
	Remove          map[Method]string          `toml:"remove,omitempty"`
	ArchMap         map[string]string          `toml:"arch_map,omitempty"`
	CLIVerifyArgs   []string                   `toml:"cli_verify_args,omitempty"`
	MinimumVersion  string                     `toml:"minimum_version,omitempty"`
	VersionConstraint *VersionConstraint       `toml:"version_constraint,omitempty"`
	Restart         *RestartSpec               `toml:"restart,omitempty"`
	MethodPriority  []Method                   `toml:"method_priority,omitempty"`
	SatisfiesSelf   bool                       `toml:"satisfies_self,omitempty"`
	Satisfies       []string                   `toml:"satisfies,omitempty"`
}

// VerifySpec names the command that exits zero when the tool is installed.
type VerifySpec struct {
	Command string `toml:"command"`
	Pattern string `toml:"pattern,omitempty"`
}

// InstallVariant is a named alternative install command selected via a
// choice binding (e.g. pytorch's "cuda121" variant, §8 E2).
type InstallVariant struct {
	Command  string  `toml:"command"`
	Method   *Method `toml:"method,omitempty"`
	PipIndex string  `toml:"pip_index,omitempty"`
}

// Requirements lists a recipe's install-time and runtime dependencies (§3).
type Requirements struct {
	Binaries []string            `toml:"binaries,omitempty"`
	Packages map[string][]string `toml:"packages,omitempty"` // family -> []pkg
	Runtime  []string            `toml:"runtime,omitempty"`
}

// SudoRule represents needs_sudo, which TOML may encode as a plain bool
// (uniform across methods) or a per-method map with an optional _default.
type SudoRule struct {
	uniform    bool
	isUniform  bool
	perMethod  map[Method]bool
	hasDefault bool
	def        bool
}

// UnmarshalTOML implements custom decoding for the bool-or-map shape.
func (s *SudoRule) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case bool:
		s.isUniform = true
		s.uniform = v
	case map[string]interface{}:
		s.perMethod = make(map[Method]bool, len(v))
		for k, raw := range v {
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("needs_sudo.%s must be a bool", k)
			}
			if k == "_default" {
				s.hasDefault = true
				s.def = b
				continue
			}
			s.perMethod[Method(k)] = b
		}
	default:
		return fmt.Errorf("needs_sudo must be a bool or a {method: bool} map")
	}
	return nil
}

// NeedsSudo reports whether the given method requires sudo for this recipe.
// Falls back to the _default entry, then false, when the method isn't listed.
func (s SudoRule) NeedsSudo(m Method) bool {
	if s.isUniform {
		return s.uniform
	}
	if b, ok := s.perMethod[m]; ok {
		return b
	}
	if s.hasDefault {
		return s.def
	}
	return false
}

// ChoiceType distinguishes single- from multi-select choices.
type ChoiceType string

const (
	ChoiceSingle ChoiceType = "single"
	ChoiceMulti  ChoiceType = "multi"
)

// ChoiceSource determines how a choice's options are obtained (§4.3).
type ChoiceSource string

const (
	SourceStatic         ChoiceSource = "static"
	SourceDynamic        ChoiceSource = "dynamic"
	SourcePackageManager ChoiceSource = "package_manager"
)

// Choice is one ordered entry in a recipe's choices list (§3).
type Choice struct {
	ID         string       `toml:"id"`
	Type       ChoiceType   `toml:"type"`
	Label      string       `toml:"label"`
	Source     ChoiceSource `toml:"source"`
	Options    []ChoiceOption `toml:"options,omitempty"`
	FetchURL   string       `toml:"fetch_url,omitempty"`
	Parse      string       `toml:"parse,omitempty"` // e.g. "json[].tag_name" or "text"
	Filter     string       `toml:"filter,omitempty"`
	Exclude    string       `toml:"exclude,omitempty"`
	Limit      int          `toml:"limit,omitempty"`
	CacheTTLSec int         `toml:"cache_ttl,omitempty"` // seconds, default 3600 (§4.3)
}

// ChoiceOption is one selectable value within a Choice (§3).
//
// Requires is the condition DSL predicate (internal/condition) evaluated
// against the profile; kept as a raw map here to avoid an import cycle
// between recipe and condition (condition.Evaluator accepts this shape
// directly).
type ChoiceOption struct {
	ID             string                 `toml:"id"`
	Label          string                 `toml:"label"`
	Default        bool                   `toml:"default,omitempty"`
	Requires       map[string]interface{} `toml:"requires,omitempty"`
	Warning        string                 `toml:"warning,omitempty"`
	Description    string                 `toml:"description,omitempty"`
	EstimatedTime  string                 `toml:"estimated_time,omitempty"`
	Risk           string                 `toml:"risk,omitempty"`
	DisabledReason string                 `toml:"disabled_reason,omitempty"`
	EnableHint     string                 `toml:"enable_hint,omitempty"`
}

// InputType is one of the typed input kinds the validator understands (§4.4).
type InputType string

const (
	InputSelect  InputType = "select"
	InputNumber  InputType = "number"
	InputText    InputType = "text"
	InputPath    InputType = "path"
	InputBoolean InputType = "boolean"
)

// Input is one ordered entry in a recipe's inputs list (§3).
type Input struct {
	ID         string                 `toml:"id"`
	Type       InputType              `toml:"type"`
	Label      string                 `toml:"label"`
	Default    interface{}            `toml:"default,omitempty"`
	Validation map[string]interface{} `toml:"validation,omitempty"`
}

// TemplateFormat is one of the config_template output formats (§6).
type TemplateFormat string

const (
	FormatJSON TemplateFormat = "json"
	FormatINI  TemplateFormat = "ini"
	FormatYAML TemplateFormat = "yaml"
	FormatRaw  TemplateFormat = "raw"
)

// ConfigTemplate describes one rendered configuration file (§3, §4.7, §6).
// PGPFingerprint is set only on repo_setup keyring templates (the body is
// an armored PGP public key); when present, the Plan Builder requires it
// to match the key's actual fingerprint before the write step runs.
type ConfigTemplate struct {
	ID             string                 `toml:"id"`
	File           string                 `toml:"file"`
	Format         TemplateFormat         `toml:"format"`
	Body           string                 `toml:"body"`
	Inputs         []string               `toml:"inputs,omitempty"`
	PostCommand    string                 `toml:"post_command,omitempty"`
	Condition      map[string]interface{} `toml:"condition,omitempty"`
	PGPFingerprint string                 `toml:"pgp_fingerprint,omitempty"`
}

// DataPackChoiceHeader labels the data-pack selector UI (§3).
type DataPackChoiceHeader struct {
	Type  string `toml:"type"`
	Label string `toml:"label"`
}

// DataPack is one optional, explicitly-selected large download (§3, §9).
type DataPack struct {
	ID        string   `toml:"id"`
	Label     string   `toml:"label"`
	SizeBytes int64    `toml:"size_bytes"`
	Command   string   `toml:"command"`
	Requires  []string `toml:"requires,omitempty"`
}

// BuildFromSource configures the source/build/install step sequence (§3, §4.7).
type BuildFromSource struct {
	BuildSystem       string                       `toml:"build_system"` // autotools|cmake|cargo_git
	GitRepo           string                       `toml:"git_repo"`
	Branch            string                       `toml:"branch,omitempty"`
	ConfigureArgs     []string                     `toml:"configure_args,omitempty"`
	CMakeArgs         []string                     `toml:"cmake_args,omitempty"`
	BuildType         string                       `toml:"build_type,omitempty"`
	RequiresToolchain map[string]map[string]interface{} `toml:"requires_toolchain,omitempty"` // name -> predicate
	RequiresPackages  map[string][]string          `toml:"requires_packages,omitempty"`       // family -> []pkg
	DiskEstimateMB    int                          `toml:"disk_estimate_mb,omitempty"`
	RAMEstimateMB     int                          `toml:"ram_estimate_mb,omitempty"`
	BuildDir          string                       `toml:"build_dir,omitempty"`
}

// VersionConstraint pins the acceptable installed-version range (§3, §8 E4).
type VersionConstraint struct {
	Type  string `toml:"type"`  // e.g. "semver_range", "cluster_match"
	Value string `toml:"value"`
}

// RestartSpec declares the restart implications a successful install carries (§3, §4.11).
type RestartSpec struct {
	Shell   bool     `toml:"shell,omitempty"`
	Service []string `toml:"service,omitempty"`
	Reboot  bool     `toml:"reboot,omitempty"`
}

// Validate enforces invariants R1-R3 on a single recipe (R4, immutability
// after load, is a Registry-level property, not per-recipe).
func (r *Recipe) Validate() error {
	if r.ToolID == "" {
		return fmt.Errorf("recipe: tool_id is required")
	}

	optionIDs := make(map[string]map[string]bool, len(r.Choices))
	for _, c := range r.Choices {
		seen := make(map[string]bool, len(c.Options))
		defaults := 0
		for _, opt := range c.Options {
			if opt.ID == "" {
				return fmt.Errorf("recipe %s: choice %s has an option with empty id", r.ToolID, c.ID)
			}
			seen[opt.ID] = true
			if opt.Default {
				defaults++
			}
		}
		if c.Type == ChoiceSingle && defaults > 1 {
			return fmt.Errorf("recipe %s: choice %s has %d default options, at most one allowed (R3)", r.ToolID, c.ID, defaults)
		}
		optionIDs[c.ID] = seen
	}

	// R1: every install_variants key must match a choice option id somewhere.
	for variantID := range r.InstallVariants {
		found := false
		for _, opts := range optionIDs {
			if opts[variantID] {
				found = true
				break
			}
		}
		if !found && len(r.Choices) > 0 {
			return fmt.Errorf("recipe %s: install_variants[%s] has no matching choice option (R1)", r.ToolID, variantID)
		}
	}

	return nil
}

// sortedMethodKeys returns a recipe's install methods in a stable order,
// used wherever plan construction must be deterministic (T9).
func sortedMethodKeys(m map[Method]string) []Method {
	keys := make([]Method, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// InstallMethods returns the recipe's declared install methods in
// deterministic (sorted) order.
func (r *Recipe) InstallMethods() []Method {
	return sortedMethodKeys(r.Install)
}
