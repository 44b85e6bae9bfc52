package annotation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule flags subjects whose name contains Match.
type Rule struct {
	Match        string            `yaml:"match" json:"match"`
	Finding      string            `yaml:"finding" json:"finding"`
	Probability  float64           `yaml:"probability" json:"probability"`
	Segmentation *SegmentationRule `yaml:"segmentation" json:"segmentation,omitempty"`
}

type SegmentationRule struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	Label     string `yaml:"label" json:"label"`
}

// Outcome is the finding returned when no rule matches.
type Outcome struct {
	Finding     string  `yaml:"finding" json:"finding"`
	Probability float64 `yaml:"probability" json:"probability"`
}

type RulesConfig struct {
	Rules   []Rule  `yaml:"rules" json:"rules"`
	Default Outcome `yaml:"default" json:"default"`
}

// DefaultRules reproduces the demonstration model: one fixture patient is
// flagged with a hemorrhage, everyone else is normal.
func DefaultRules() RulesConfig {
	return RulesConfig{
		Rules: []Rule{{
			Match:       "CASILLAS",
			Finding:     "Acute Intracranial Hemorrhage",
			Probability: 0.98,
			Segmentation: &SegmentationRule{
				Algorithm: "SEMIAUTOMATIC",
				Label:     "Brain Tissue",
			},
		}},
		Default: Outcome{Finding: "No anomalies detected", Probability: 0.01},
	}
}

// LoadRules reads a YAML rules file. An empty path yields DefaultRules.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return RulesConfig{}, fmt.Errorf("read annotator rules: %w", err)
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, fmt.Errorf("parse annotator rules: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RulesConfig{}, err
	}
	return cfg, nil
}

// Validate checks that every rule can match and every probability is in [0,1].
func (c RulesConfig) Validate() error {
	if len(c.Rules) == 0 {
		return errors.New("no annotator rules configured")
	}
	for i, r := range c.Rules {
		if strings.TrimSpace(r.Match) == "" {
			return fmt.Errorf("rule %d: match is required", i)
		}
		if r.Probability < 0 || r.Probability > 1 {
			return fmt.Errorf("rule %d: probability %v out of range [0,1]", i, r.Probability)
		}
	}
	if c.Default.Probability < 0 || c.Default.Probability > 1 {
		return fmt.Errorf("default probability %v out of range [0,1]", c.Default.Probability)
	}
	return nil
}
