// Package ethics implements the pre-query rule engine. The rules are
// pure data from the configuration document: a hard blocklist of
// prohibited-intent phrases, weighted soft-risk principles with
// keyword lists, and context adjustments. The filter never calls any
// provider adapter.
package ethics

import (
	"fmt"
	"strings"

	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/models"
)

// Context flag adjustment constants, applied in Evaluate.
const (
	contextBase = 0.5

	severityVulnerable    = 0.2
	severityHighImpact    = 0.2
	severityPriorOffenses = 0.1
	severityNegation      = 0.3
	negationWindow        = 20
)

// Thresholds per validation level.
var levelThresholds = map[models.ValidationLevel]struct {
	maxRisk    float64
	minContext float64
}{
	models.LevelNormal: {maxRisk: 0.7, minContext: 0.5},
	models.LevelStrict: {maxRisk: 0.5, minContext: 0.6},
}

// Filter evaluates queries against the configured rule set.
type Filter struct {
	blocklist  []string
	principles []config.Principle
	negations  []string
}

// NewFilter creates a filter over the given rule set.
func NewFilter(cfg config.EthicsConfig) *Filter {
	return &Filter{
		blocklist:  cfg.HardBlocklist,
		principles: cfg.Principles,
		negations:  cfg.NegationTerms,
	}
}

// Evaluate runs the rule pipeline over the query text. When the
// caller disables the ethical filter only the empty-text rule applies;
// the hard blocklist and soft scoring are skipped entirely.
func (f *Filter) Evaluate(text string, opts models.SearchOptions) models.EthicalAssessment {
	if strings.TrimSpace(text) == "" {
		return models.EthicalAssessment{
			Accepted:        false,
			Reason:          "empty query",
			MatchedRuleID:   "empty_query",
			RiskScore:       1.0,
			ContextScore:    contextBase,
			ConfidenceScore: 1.0,
		}
	}

	if !opts.EthicalFilter {
		return models.EthicalAssessment{
			Accepted:        true,
			RiskScore:       0,
			ContextScore:    contextBase,
			ConfidenceScore: 1.0,
		}
	}

	lowered := strings.ToLower(text)

	for i, phrase := range f.blocklist {
		if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
			return models.EthicalAssessment{
				Accepted:        false,
				Reason:          "query matches prohibited-intent rule",
				MatchedRuleID:   fmt.Sprintf("blocklist/%02d", i),
				RiskScore:       1.0,
				ContextScore:    contextBase,
				ConfidenceScore: 1.0,
			}
		}
	}

	risk, principleID := f.maxSeverity(lowered, opts)
	contextScore := f.contextScore(opts)

	assessment := models.EthicalAssessment{
		Accepted:     true,
		RiskScore:    risk,
		ContextScore: contextScore,
		// Distance from the neutral midpoint: a decisive score either
		// way means the rules speak clearly.
		ConfidenceScore: 0.5 + abs(risk-0.5),
	}

	threshold, ok := levelThresholds[opts.ValidationLevel]
	if !ok {
		// Minimal level: steps 1 and 2 are the only gates.
		return assessment
	}

	if risk > threshold.maxRisk {
		assessment.Accepted = false
		assessment.Reason = "risk score exceeds threshold"
		assessment.MatchedRuleID = "principle/" + principleID
		return assessment
	}
	if contextScore < threshold.minContext {
		assessment.Accepted = false
		assessment.Reason = "context score below threshold"
		assessment.MatchedRuleID = "context_score"
	}
	return assessment
}

// maxSeverity computes the highest principle severity found in the
// text, along with the principle that produced it.
func (f *Filter) maxSeverity(lowered string, opts models.SearchOptions) (float64, string) {
	var maxSev float64
	var maxID string

	for _, principle := range f.principles {
		for _, keyword := range principle.Keywords {
			kw := strings.ToLower(keyword)
			idx := strings.Index(lowered, kw)
			if idx < 0 {
				continue
			}

			severity := principle.Weight * 0.5
			if opts.ContextFlag("user_vulnerable") {
				severity += severityVulnerable
			}
			if opts.ContextFlag("high_impact") {
				severity += severityHighImpact
			}
			if opts.ContextFlag("previous_violations") {
				severity += severityPriorOffenses
			}
			if f.negatedNearby(lowered, idx, len(kw)) {
				severity -= severityNegation
			}

			severity = clamp(severity)
			if severity > maxSev {
				maxSev = severity
				maxID = principle.ID
			}
		}
	}
	return maxSev, maxID
}

// negatedNearby reports whether a negating word appears within the
// window around the keyword occurrence.
func (f *Filter) negatedNearby(lowered string, idx, kwLen int) bool {
	start := idx - negationWindow
	if start < 0 {
		start = 0
	}
	end := idx + kwLen + negationWindow
	if end > len(lowered) {
		end = len(lowered)
	}
	surrounding := lowered[start:end]

	for _, neg := range f.negations {
		if containsWord(surrounding, strings.ToLower(neg)) {
			return true
		}
	}
	return false
}

// contextScore starts neutral and shifts with recognized context
// flags, clamped to [0,1].
func (f *Filter) contextScore(opts models.SearchOptions) float64 {
	score := contextBase

	if opts.ContextFlag("educational_purpose") {
		score += 0.2
	}
	if opts.ContextFlag("beneficial_intent") {
		score += 0.1
	}
	if opts.ContextFlag("user_consent") {
		score += 0.2
	}
	if opts.ContextFlag("sensitive_data") {
		score -= 0.1
	}
	if opts.ContextFlag("previous_violations") {
		score -= 0.2
	}
	if opts.ContextFloat("risk_level") > 0.7 {
		score -= 0.3
	}
	return clamp(score)
}

// containsWord matches a whole word, so "not" does not fire inside
// "notable".
func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		leftOK := i == 0 || !isWordChar(s[i-1])
		right := i + len(word)
		rightOK := right >= len(s) || !isWordChar(s[right])
		if leftOK && rightOK {
			return true
		}
		idx = i + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
