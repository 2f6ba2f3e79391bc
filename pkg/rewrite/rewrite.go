// Package rewrite evaluates ordered, scoped rule chains that rewrite a
// (title, url) pair through regex substitutions. Evaluation is a pure
// function of its inputs; the engine holds no state between calls.
package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// Field names the half of the pair a transform targets.
type Field string

// Transform targets.
const (
	FieldTitle Field = "title"
	FieldURL   Field = "url"
)

// Transform is one regex substitution applied to either the title or the URL.
// Replacement supports numbered back-references in Go template form ($1, $2).
type Transform struct {
	Target      Field  `yaml:"target"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Enabled     bool   `yaml:"enabled"`
}

// Validate reports whether the transform's pattern compiles, for editor
// feedback independent of application.
func (t Transform) Validate() error {
	if _, err := regexp.Compile(t.Pattern); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", t.Pattern, err)
	}
	return nil
}

// apply runs the substitution. An invalid pattern leaves the value unchanged
// rather than aborting the chain: one bad rule must never block the others.
func (t Transform) apply(value string) string {
	re, err := regexp.Compile(t.Pattern)
	if err != nil {
		return value
	}
	return re.ReplaceAllString(value, t.Replacement)
}

// Rule is a named, ordered list of transforms gated by a URL prefix.
// An empty URLPrefix matches every URL; otherwise matching is a
// case-sensitive literal prefix comparison against the current URL.
type Rule struct {
	Name       string      `yaml:"name"`
	URLPrefix  string      `yaml:"urlPrefix"`
	Enabled    bool        `yaml:"enabled"`
	Transforms []Transform `yaml:"transforms"`
}

// matches reports whether the rule applies to the in-progress URL.
func (r Rule) matches(url string) bool {
	return r.URLPrefix == "" || strings.HasPrefix(url, r.URLPrefix)
}

// RuleGroup is an ordered list of rules.
type RuleGroup struct {
	Rules []Rule `yaml:"rules"`
}

// ScopedGroup is a rule group keyed by a destination-application identifier.
type ScopedGroup struct {
	ScopeKey    string `yaml:"scopeKey"`
	DisplayName string `yaml:"displayName"`
	Enabled     bool   `yaml:"enabled"`
	Rules       []Rule `yaml:"rules"`
}

// RuleSet is the full rule configuration: exactly one global group plus zero
// or more scoped groups.
type RuleSet struct {
	Global RuleGroup     `yaml:"globalGroup"`
	Scoped []ScopedGroup `yaml:"scopedGroups"`
}

// Apply rewrites (title, url) through the global group's rules in order,
// then through the enabled scoped group for scopeKey, if any. Each transform
// sees the output of all earlier ones.
func (rs *RuleSet) Apply(title, url, scopeKey string) (string, string) {
	title, url = applyRules(rs.Global.Rules, title, url)
	if scopeKey == "" {
		return title, url
	}
	for _, g := range rs.Scoped {
		if g.ScopeKey == scopeKey && g.Enabled {
			title, url = applyRules(g.Rules, title, url)
			break
		}
	}
	return title, url
}

func applyRules(rules []Rule, title, url string) (string, string) {
	for _, r := range rules {
		if !r.Enabled || !r.matches(url) {
			continue
		}
		for _, t := range r.Transforms {
			if !t.Enabled {
				continue
			}
			switch t.Target {
			case FieldTitle:
				title = t.apply(title)
			case FieldURL:
				url = t.apply(url)
			}
		}
	}
	return title, url
}
