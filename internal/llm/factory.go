package llm

import (
	"context"
	"fmt"
	"os"
)

// Factory holds whichever providers have credentials in the environment,
// each behind its own breaker, and picks a primary with fallback.
type Factory struct {
	providers map[string]Provider
	breakers  map[string]*breaker
	primary   string
}

// NewFactory auto-detects providers from the environment:
//   - claude: ANTHROPIC_API_KEY
//   - gemini: GOOGLE_API_KEY or GEMINI_API_KEY
//
// Returns an error if neither is configured.
func NewFactory(ctx context.Context) (*Factory, error) {
	f := &Factory{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*breaker),
		primary:   "claude",
	}

	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		if p, err := NewClaudeProvider(); err == nil {
			f.providers["claude"] = p
			f.breakers["claude"] = newBreaker()
		}
	}
	if os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "" {
		if p, err := NewGeminiProvider(ctx); err == nil {
			f.providers["gemini"] = p
			f.breakers["gemini"] = newBreaker()
		}
	}

	if len(f.providers) == 0 {
		return nil, fmt.Errorf("llm: no provider configured, set ANTHROPIC_API_KEY or GOOGLE_API_KEY")
	}
	return f, nil
}

// newFactoryWithProviders builds a Factory around already-constructed
// providers, for tests that stand in a fake Provider.
func newFactoryWithProviders(providers map[string]Provider, primary string) *Factory {
	f := &Factory{providers: providers, breakers: make(map[string]*breaker), primary: primary}
	for name := range providers {
		f.breakers[name] = newBreaker()
	}
	return f
}

// provider returns the primary provider if its breaker allows a request,
// otherwise any other provider whose breaker does.
func (f *Factory) provider() (Provider, bool) {
	if p, ok := f.providers[f.primary]; ok && f.breakers[f.primary].Allow() {
		return p, true
	}
	for name, p := range f.providers {
		if name == f.primary {
			continue
		}
		if f.breakers[name].Allow() {
			return p, true
		}
	}
	return nil, false
}

func (f *Factory) reportOutcome(name string, err error) {
	b, ok := f.breakers[name]
	if !ok {
		return
	}
	if err != nil {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
}
