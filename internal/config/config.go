// Package config handles byterun.toml run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"byterun/pkg/interpreter"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad
const FileName = "byterun.toml"

// Config represents a byterun.toml file.
type Config struct {
	Engine Engine `toml:"engine"`
	Output Output `toml:"output"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Engine configures the interpreter.
type Engine struct {
	MaxSteps int  `toml:"max-steps"`
	MaxDepth int  `toml:"max-depth"`
	Trace    bool `toml:"trace"`
}

// Output configures what the runner prints.
type Output struct {
	Color       *bool `toml:"color"`
	Disassemble bool  `toml:"disassemble"`
}

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{Engine: Engine{MaxDepth: interpreter.DefaultMaxDepth}}
}

// Load parses the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if c.Engine.MaxSteps < 0 {
		return nil, fmt.Errorf("%s: max-steps must not be negative", path)
	}
	if c.Engine.MaxDepth <= 0 {
		return nil, fmt.Errorf("%s: max-depth must be positive", path)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	return c, nil
}

// FindAndLoad walks up from startDir to find a byterun.toml file and loads
// it. Returns nil if there is none.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ColorEnabled reports whether colored output is on, defaulting to true
func (c *Config) ColorEnabled() bool {
	return c.Output.Color == nil || *c.Output.Color
}
