package docgraph

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the docgraph service.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.docgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "docgraph".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// not explicitly set. Options: "home" (default) uses ~/.docgraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM configures the completion endpoint used for extraction.
	// An empty APIKey selects the deterministic fallback extractor, so
	// the pipeline stays exercisable without external dependencies.
	LLM LLMConfig `json:"llm" yaml:"llm"`
}

// LLMConfig configures the completion endpoint.
type LLMConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with documented defaults. The database
// lives in ~/.docgraph/docgraph.db; the completion endpoint defaults to
// the OpenAI API and is overridden per deployment.
func DefaultConfig() Config {
	return Config{
		DBName:     "docgraph",
		StorageDir: "home",
		LLM: LLMConfig{
			Model:   "gpt-3.5-turbo",
			BaseURL: "https://api.openai.com",
		},
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".docgraph", name+".db")
	}
}
