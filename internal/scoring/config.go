package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier boundaries and weights for short answers. Tuned by hand against real
// quiz sessions; change them through Config rather than here.
const (
	DefaultCorrectThreshold = 0.88
	DefaultPartialThreshold = 0.68
	DefaultContainmentBoost = 0.08
	DefaultSimilarityWeight = 0.65
	DefaultKeywordWeight    = 0.35
)

var ErrInvalidConfig = errors.New("invalid scoring config")

// Config holds every tunable of the scorer. Word lists are data so that a new
// locale can be added from a config file.
type Config struct {
	CorrectThreshold float64 `yaml:"correct_threshold"`
	PartialThreshold float64 `yaml:"partial_threshold"`
	ContainmentBoost float64 `yaml:"containment_boost"`
	SimilarityWeight float64 `yaml:"similarity_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`

	StopWords      []string `yaml:"stop_words"`
	SeparatorWords []string `yaml:"separator_words"`
	TrueWords      []string `yaml:"true_words"`
	FalseWords     []string `yaml:"false_words"`
	TruePrefixes   []string `yaml:"true_prefixes"`
	FalsePrefixes  []string `yaml:"false_prefixes"`
}

func DefaultConfig() Config {
	return Config{
		CorrectThreshold: DefaultCorrectThreshold,
		PartialThreshold: DefaultPartialThreshold,
		ContainmentBoost: DefaultContainmentBoost,
		SimilarityWeight: DefaultSimilarityWeight,
		KeywordWeight:    DefaultKeywordWeight,
		StopWords: []string{
			"de", "het", "een", "en", "of", "to", "the", "a", "an",
			"is", "zijn", "wordt", "van", "in", "op", "voor",
		},
		SeparatorWords: []string{"or", "of", "en"},
		TrueWords:      []string{"true", "t", "waar", "juist", "yes", "y", "1", "w"},
		FalseWords:     []string{"false", "f", "onwaar", "fout", "no", "n", "0", "o"},
		TruePrefixes:   []string{"waar", "juist"},
		FalsePrefixes:  []string{"onwaar", "fout"},
	}
}

// LoadConfig reads a YAML scoring config. Fields left out of the file keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read scoring config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse scoring config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("parse scoring config: multiple YAML documents are not supported")
		}
		return Config{}, fmt.Errorf("parse scoring config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.PartialThreshold < 0:
		return fmt.Errorf("%w: partial_threshold must not be negative", ErrInvalidConfig)
	case c.CorrectThreshold < c.PartialThreshold:
		return fmt.Errorf("%w: correct_threshold must be >= partial_threshold", ErrInvalidConfig)
	case c.ContainmentBoost < 0:
		return fmt.Errorf("%w: containment_boost must not be negative", ErrInvalidConfig)
	case c.SimilarityWeight < 0 || c.KeywordWeight < 0:
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}
	for _, w := range c.SeparatorWords {
		if strings.TrimSpace(w) == "" || strings.ContainsAny(w, " \t") {
			return fmt.Errorf("%w: separator word %q must be a single word", ErrInvalidConfig, w)
		}
	}
	return nil
}

func wordSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = Normalize(w)
		if w == "" {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = Normalize(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}
