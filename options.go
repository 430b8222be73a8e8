package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// RunOptions is the optional TOML-driven tuning file passed with --options.
// Credentials stay in the JSON config; everything here has a usable default.
type RunOptions struct {
	BatchSize int         `toml:"batch_size"` // rows per INSERT batch
	Where     string      `toml:"where"`      // row filter for data migration
	Hooks     HooksConfig `toml:"hooks"`

	// optionsDir is the directory containing the TOML file, used to resolve
	// relative hook SQL paths.
	optionsDir string
}

// HooksConfig lists SQL files executed against each destination around the
// data copy phase.
type HooksConfig struct {
	BeforeData []string `toml:"before_data"`
	AfterData  []string `toml:"after_data"`
}

const defaultBatchSize = 1000

func defaultRunOptions() *RunOptions {
	return &RunOptions{BatchSize: defaultBatchSize}
}

// loadRunOptions reads a TOML options file, rejecting unknown keys.
func loadRunOptions(path string) (*RunOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}

	opts := defaultRunOptions()
	md, err := toml.Decode(string(data), opts)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown options keys: %s", strings.Join(keys, ", "))
	}

	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be positive")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve options path: %w", err)
	}
	opts.optionsDir = filepath.Dir(absPath)

	return opts, nil
}

// resolvePath resolves a hook path relative to the options file directory.
func (o *RunOptions) resolvePath(p string) string {
	if filepath.IsAbs(p) || o.optionsDir == "" {
		return p
	}
	return filepath.Join(o.optionsDir, p)
}
