package rewrite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRules reads a YAML rule file. A missing file is not an error; it yields
// an empty set (the global group always exists, here with no rules).
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // rule file path comes from the caller
	if errors.Is(err, fs.ErrNotExist) {
		return &RuleSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &rs, nil
}

// Save writes the rule set to path as YAML.
func (rs *RuleSet) Save(path string) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return nil
}

// The enabled flag defaults to true when omitted from a hand-written rule
// file; only an explicit `enabled: false` disables.

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Transform) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Target      Field  `yaml:"target"`
		Pattern     string `yaml:"pattern"`
		Replacement string `yaml:"replacement"`
		Enabled     *bool  `yaml:"enabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t.Target = raw.Target
	t.Pattern = raw.Pattern
	t.Replacement = raw.Replacement
	t.Enabled = raw.Enabled == nil || *raw.Enabled
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name       string      `yaml:"name"`
		URLPrefix  string      `yaml:"urlPrefix"`
		Enabled    *bool       `yaml:"enabled"`
		Transforms []Transform `yaml:"transforms"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Name = raw.Name
	r.URLPrefix = raw.URLPrefix
	r.Enabled = raw.Enabled == nil || *raw.Enabled
	r.Transforms = raw.Transforms
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *ScopedGroup) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ScopeKey    string `yaml:"scopeKey"`
		DisplayName string `yaml:"displayName"`
		Enabled     *bool  `yaml:"enabled"`
		Rules       []Rule `yaml:"rules"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	g.ScopeKey = raw.ScopeKey
	g.DisplayName = raw.DisplayName
	g.Enabled = raw.Enabled == nil || *raw.Enabled
	g.Rules = raw.Rules
	return nil
}
