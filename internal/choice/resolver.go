// Package choice implements the Choice Resolver (component D, spec §4.3):
// materializing a recipe's declared choices into concrete, enabled/disabled
// options against a profile, including the dynamic-fetch + TTL-cache path.
package choice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/outfit-dev/outfit/internal/condition"
	"github.com/outfit-dev/outfit/internal/log"
	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

// Option is one materialized, profile-evaluated choice option.
type Option struct {
	ID             string
	Label          string
	Disabled       bool
	DisabledReason string
	EnableHint     string
	Warning        string
	Default        bool
}

// Resolved is the materialized form of one recipe choice.
type Resolved struct {
	ID      string
	Type    recipe.ChoiceType
	Options []Option
	// Value holds the effective selection: a string for single-select,
	// []string for multi-select.
	Value interface{}
}

// ResolvedChoices maps choice id to its resolved form, consumed by the
// Method Selector and the Plan Builder's template rendering.
type ResolvedChoices map[string]Resolved

// DisabledNotice records one disabled option for surfacing to the caller (B3).
type DisabledNotice struct {
	ChoiceID string
	OptionID string
	Reason   string
}

// NetworkWarning is emitted when a dynamic fetch fell back to stale cache,
// static options, or a synthetic "latest" (B2).
type NetworkWarning struct {
	ChoiceID string
	URL      string
	Error    string
}

// Answers is the caller-supplied {choice_id -> option_id | [option_id]} binding (§3).
type Answers map[string]interface{}

// Resolver materializes recipe choices against a profile, with an injectable
// HTTP client and a single owned cache (not a package global, per §9).
type Resolver struct {
	httpClient *http.Client
	github     *github.Client
	cache      *Cache
	logger     log.Logger
	apiTimeout time.Duration
}

// NewResolver builds a Resolver with the hardened default HTTP client. A
// GitHub API client rides alongside it for choices whose fetch_url targets
// api.github.com's tags/releases endpoints, authenticated with GITHUB_TOKEN
// when present to avoid the unauthenticated rate limit.
func NewResolver(apiTimeout time.Duration) *Resolver {
	githubHTTP := http.DefaultClient
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		githubHTTP = oauth2.NewClient(context.Background(), ts)
	}
	return &Resolver{
		httpClient: newHTTPClient(apiTimeout),
		github:     github.NewClient(githubHTTP),
		cache:      NewCache(),
		logger:     log.Default(),
		apiTimeout: apiTimeout,
	}
}

// Result is everything Resolve produces for a recipe.
type Result struct {
	Choices  ResolvedChoices
	Disabled []DisabledNotice
	Warnings []NetworkWarning
}

// Resolve walks rec.Choices in declaration order, resolving each against
// profile and answers (§4.3).
func (r *Resolver) Resolve(ctx context.Context, rec *recipe.Recipe, profile *sysprofile.Profile, answers Answers) (*Result, error) {
	result := &Result{Choices: make(ResolvedChoices, len(rec.Choices))}

	for _, c := range rec.Choices {
		rawOptions, warning := r.materializeOptions(ctx, c)
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		}

		options := make([]Option, 0, len(rawOptions))
		for _, opt := range rawOptions {
			ok, reason := condition.Evaluate(condition.Predicate(opt.Requires), profile)
			o := Option{
				ID:      opt.ID,
				Label:   opt.Label,
				Default: opt.Default,
				Warning: opt.Warning,
			}
			if !ok {
				o.Disabled = true
				o.DisabledReason = opt.DisabledReason
				if o.DisabledReason == "" {
					o.DisabledReason = reason
				}
				o.EnableHint = opt.EnableHint
				result.Disabled = append(result.Disabled, DisabledNotice{
					ChoiceID: c.ID, OptionID: opt.ID, Reason: o.DisabledReason,
				})
			}
			options = append(options, o)
		}

		value, err := pickEffective(c, options, answers)
		if err != nil {
			return nil, err
		}

		result.Choices[c.ID] = Resolved{ID: c.ID, Type: c.Type, Options: options, Value: value}
	}

	return result, nil
}

// materializeOptions resolves a choice's options list per its source (§4.3 step 1).
func (r *Resolver) materializeOptions(ctx context.Context, c recipe.Choice) ([]recipe.ChoiceOption, *NetworkWarning) {
	switch c.Source {
	case recipe.SourceStatic, "":
		return c.Options, nil

	case recipe.SourcePackageManager:
		return []recipe.ChoiceOption{{ID: "detected", Label: "Detected via package manager"}}, nil

	case recipe.SourceDynamic:
		return r.resolveDynamic(ctx, c)

	default:
		return c.Options, nil
	}
}

func (r *Resolver) resolveDynamic(ctx context.Context, c recipe.Choice) ([]recipe.ChoiceOption, *NetworkWarning) {
	ttl := time.Duration(c.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}

	if cached, fresh, found := r.cache.Get(c.FetchURL, ttl); found && fresh {
		return tagsToOptions(cached), nil
	}

	tags, err := r.fetch(ctx, c)
	if err == nil {
		r.cache.Set(c.FetchURL, tags)
		return tagsToOptions(tags), nil
	}

	r.logger.Warn("dynamic choice fetch failed", "choice", c.ID, "url", c.FetchURL, "error", err)
	warning := &NetworkWarning{ChoiceID: c.ID, URL: c.FetchURL, Error: err.Error()}

	if cached, _, found := r.cache.Get(c.FetchURL, ttl); found {
		return tagsToOptions(cached), warning
	}
	if len(c.Options) > 0 {
		return c.Options, warning
	}
	return []recipe.ChoiceOption{{ID: "latest", Label: "latest (network unavailable)"}}, warning
}

// githubTagsURLRe and githubReleasesURLRe recognize recipe fetch_urls that
// name a GitHub API endpoint this resolver can serve through the typed
// go-github client instead of a raw HTTP+JSON round trip.
var (
	githubTagsURLRe     = regexp.MustCompile(`^https://api\.github\.com/repos/([^/]+)/([^/]+)/tags$`)
	githubReleasesURLRe = regexp.MustCompile(`^https://api\.github\.com/repos/([^/]+)/([^/]+)/releases$`)
)

func (r *Resolver) fetch(ctx context.Context, c recipe.Choice) ([]string, error) {
	if m := githubTagsURLRe.FindStringSubmatch(c.FetchURL); m != nil {
		return r.fetchGitHubTags(ctx, c, m[1], m[2])
	}
	if m := githubReleasesURLRe.FindStringSubmatch(c.FetchURL); m != nil {
		return r.fetchGitHubReleases(ctx, c, m[1], m[2])
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FetchURL, nil)
	if err != nil {
		return nil, outfiterr.Wrap(outfiterr.KindNetwork, "building request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, outfiterr.Wrap(outfiterr.KindNetwork, "dynamic choice fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, outfiterr.New(outfiterr.KindRegistryUnreachable, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, outfiterr.Wrap(outfiterr.KindNetwork, "reading response body", err)
	}

	items, err := parseBody(c.Parse, body)
	if err != nil {
		return nil, err
	}

	items = applyFilters(items, c.Filter, c.Exclude)
	if c.Limit > 0 && len(items) > c.Limit {
		items = items[:c.Limit]
	}
	return items, nil
}

func (r *Resolver) fetchGitHubTags(ctx context.Context, c recipe.Choice, owner, repoName string) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	tags, _, err := r.github.Repositories.ListTags(ctx, owner, repoName, opts)
	if err != nil {
		return nil, outfiterr.Wrap(outfiterr.KindNetwork, "listing github tags", err)
	}
	items := make([]string, 0, len(tags))
	for _, t := range tags {
		items = append(items, t.GetName())
	}
	return limitItems(applyFilters(items, c.Filter, c.Exclude), c.Limit), nil
}

func (r *Resolver) fetchGitHubReleases(ctx context.Context, c recipe.Choice, owner, repoName string) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	releases, _, err := r.github.Repositories.ListReleases(ctx, owner, repoName, opts)
	if err != nil {
		return nil, outfiterr.Wrap(outfiterr.KindNetwork, "listing github releases", err)
	}
	items := make([]string, 0, len(releases))
	for _, rel := range releases {
		if rel.GetDraft() {
			continue
		}
		items = append(items, rel.GetTagName())
	}
	return limitItems(applyFilters(items, c.Filter, c.Exclude), c.Limit), nil
}

func limitItems(items []string, limit int) []string {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// parseBody interprets the dynamic fetch response per the choice's `parse`
// spec: "json[].<field>" extracts a field from each element of a JSON array
// (e.g. GitHub releases' tag_name); "text" splits newline-delimited output.
func parseBody(parse string, body []byte) ([]string, error) {
	if parse == "" || parse == "text" {
		var out []string
		for _, line := range splitNonEmptyLines(string(body)) {
			out = append(out, line)
		}
		return out, nil
	}

	field, ok := fieldFromJSONArrayParse(parse)
	if !ok {
		return nil, outfiterr.New(outfiterr.KindTemplateUnresolved, fmt.Sprintf("unsupported parse spec %q", parse))
	}

	var elements []map[string]interface{}
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, outfiterr.Wrap(outfiterr.KindNetwork, "decoding dynamic choice JSON", err)
	}

	out := make([]string, 0, len(elements))
	for _, e := range elements {
		if v, ok := e[field]; ok {
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out, nil
}

var jsonArrayParseRe = regexp.MustCompile(`^json\[\]\.(\w+)$`)

func fieldFromJSONArrayParse(parse string) (string, bool) {
	m := jsonArrayParseRe.FindStringSubmatch(parse)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if line != "" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	return out
}

func applyFilters(items []string, filter, exclude string) []string {
	var filterRe, excludeRe *regexp.Regexp
	if filter != "" {
		filterRe = regexp.MustCompile(filter)
	}
	if exclude != "" {
		excludeRe = regexp.MustCompile(exclude)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if filterRe != nil && !filterRe.MatchString(item) {
			continue
		}
		if excludeRe != nil && excludeRe.MatchString(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func tagsToOptions(tags []string) []recipe.ChoiceOption {
	opts := make([]recipe.ChoiceOption, 0, len(tags))
	for _, tag := range tags {
		opts = append(opts, recipe.ChoiceOption{ID: tag, Label: tag})
	}
	return opts
}

// pickEffective implements §4.3 step 3: supplied answer > default option >
// first enabled option.
func pickEffective(c recipe.Choice, options []Option, answers Answers) (interface{}, error) {
	if c.Type == recipe.ChoiceMulti {
		if answer, ok := answers[c.ID]; ok {
			if list, ok := answer.([]string); ok {
				return list, nil
			}
		}
		var enabled []string
		for _, o := range options {
			if !o.Disabled {
				enabled = append(enabled, o.ID)
			}
		}
		sort.Strings(enabled)
		return enabled, nil
	}

	if answer, ok := answers[c.ID]; ok {
		if s, ok := answer.(string); ok {
			if optionEnabled(options, s) {
				return s, nil
			}
		}
	}

	for _, o := range options {
		if o.Default && !o.Disabled {
			return o.ID, nil
		}
	}
	for _, o := range options {
		if !o.Disabled {
			return o.ID, nil
		}
	}

	return nil, outfiterr.New(outfiterr.KindNoAvailableOption, fmt.Sprintf("choice %q has no available option", c.ID))
}

func optionEnabled(options []Option, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return !o.Disabled
		}
	}
	return false
}
