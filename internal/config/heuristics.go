package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Heuristics holds the tunable verification and rewrite word lists. Deployments
// override the built-in Portuguese defaults with a YAML file when the corpus
// needs different abstention phrasing or stop words.
type Heuristics struct {
	AbstentionPhrases []string `yaml:"abstention_phrases"`
	RewriteStopWords  []string `yaml:"rewrite_stop_words"`
}

// LoadHeuristics reads the heuristics file at path. An empty path returns zero
// values so downstream config normalization applies the defaults.
func LoadHeuristics(path string) (Heuristics, error) {
	if path == "" {
		return Heuristics{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Heuristics{}, fmt.Errorf("read heuristics file: %w", err)
	}
	var h Heuristics
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return Heuristics{}, fmt.Errorf("parse heuristics file: %w", err)
	}
	return h, nil
}
