package config

// WorldConfig controls which workspace entries the assembler may visit.
type WorldConfig struct {
	// ExcludedDirs are directory names never listed or descended into
	// (dependency caches, version control, build output).
	ExcludedDirs []string `yaml:"excluded_dirs" json:"excluded_dirs,omitempty"`
	// ReadWorkers caps concurrent sibling reads during one assembly.
	ReadWorkers int `yaml:"read_workers" json:"read_workers,omitempty"`
}

// DefaultWorldConfig returns defaults for workspace traversal.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		ExcludedDirs: []string{
			".git",
			"node_modules",
			"dist",
			"build",
			"__pycache__",
			"vendor",
			"target",
			".next",
			".venv",
			".cache",
		},
		ReadWorkers: 4,
	}
}
