package config

import "time"

// FamilyCeiling maps a model-family substring to an assumed character
// ceiling. Used when the live model probe is unavailable.
type FamilyCeiling struct {
	Family string `yaml:"family" json:"family"`
	Chars  int    `yaml:"chars" json:"chars"`
}

// BudgetConfig configures model budget discovery.
type BudgetConfig struct {
	// ProbeTimeout bounds the model-listing request.
	ProbeTimeout string `yaml:"probe_timeout" json:"probe_timeout,omitempty"`
	// Fallback is matched in order; the first family contained in the
	// model name wins, so more specific names must come first.
	Fallback []FamilyCeiling `yaml:"fallback" json:"fallback,omitempty"`
	// DefaultChars is returned when no family matches. It may raise the
	// built-in floor but never lower it.
	DefaultChars int `yaml:"default_chars" json:"default_chars,omitempty"`
}

// MinDefaultChars is the smallest accepted default_chars.
const MinDefaultChars = 20000

// DefaultFallbackTable returns the built-in family table.
func DefaultFallbackTable() []FamilyCeiling {
	return []FamilyCeiling{
		{Family: "phi-3", Chars: 420000},
		{Family: "llama-3.1", Chars: 420000},
		{Family: "deepseek", Chars: 110000},
		{Family: "mixtral", Chars: 110000},
		{Family: "codellama:34b", Chars: 58000},
		{Family: "codellama", Chars: 58000},
		{Family: "wizardcoder", Chars: 58000},
		{Family: "gemma", Chars: 28000},
		{Family: "mistral", Chars: 28000},
		{Family: "llama-3", Chars: 28000},
	}
}

// DefaultBudgetConfig returns the default budget discovery settings.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		ProbeTimeout: "5s",
		Fallback:     DefaultFallbackTable(),
		DefaultChars: MinDefaultChars,
	}
}

// GetProbeTimeout returns the probe timeout as a duration.
func (c *Config) GetProbeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Budget.ProbeTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
