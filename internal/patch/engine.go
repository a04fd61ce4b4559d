// Package patch applies configured override rules to environment manifests.
package patch

import (
	"regexp"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
)

// compiledRule pairs a rule with its compiled pattern so Resolve never
// re-parses expressions on the hot path.
type compiledRule struct {
	rule    domain.PatchRule
	pattern *regexp.Regexp
}

// Engine evaluates patch rules against environment manifests. Rules keep
// their configured order and the first matching rule wins; later rules are
// not consulted even if they would also match.
type Engine struct {
	rules []compiledRule
}

// New compiles the rule list into an engine. Every pattern is validated up
// front so that a bad rule fails process startup instead of a run.
func New(rules []domain.PatchRule) (*Engine, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			ruleErr := zerr.With(domain.ErrInvalidPatchRule, "rule", r.Name)
			ruleErr = zerr.With(ruleErr, "pattern", r.Pattern)
			ruleErr = zerr.With(ruleErr, "cause", err.Error())
			return nil, ruleErr
		}

		compiled = append(compiled, compiledRule{rule: r, pattern: re})
	}

	return &Engine{rules: compiled}, nil
}

// Resolve tests the manifest's environment name against the rules in order
// and applies the first match. It returns the (possibly adjusted) manifest
// and the rule that matched, or nil when no rule applied. The input manifest
// is never modified.
func (e *Engine) Resolve(m domain.EnvironmentManifest) (domain.EnvironmentManifest, *domain.PatchRule) {
	name := m.Name()
	for i := range e.rules {
		if !e.rules[i].pattern.MatchString(name) {
			continue
		}

		matched := e.rules[i].rule
		return m.WithOverride(matched.Override), &matched
	}

	return m, nil
}
