// Package router scores enabled providers against extracted query
// features and produces an ordered candidate plan for the fallback
// executor.
package router

import (
	"sort"
	"strings"

	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/models"
)

// Feature extraction weights for the complexity score.
const (
	weightLength   = 0.3
	weightUnique   = 0.3
	weightSpecials = 0.2
	weightDensity  = 0.2
)

// StatsSource supplies historical per-provider success rates, used
// only for tie-breaking.
type StatsSource interface {
	SuccessRate(providerID string) float64
}

// Features are the normalized signals extracted from a query.
type Features struct {
	Complexity    float64
	EthicalWeight float64
	Risk          float64
	Required      []models.Capability
}

// Router produces candidate plans from provider configurations.
type Router struct {
	cfg   config.RouterConfig
	stats StatsSource
}

// New creates a router with the given scoring configuration.
func New(cfg config.RouterConfig, stats StatsSource) *Router {
	return &Router{cfg: cfg, stats: stats}
}

// contextCapabilities maps request context flags to the capability a
// provider must advertise to serve them.
var contextCapabilities = map[string]models.Capability{
	"requires_coding":       models.CapCoding,
	"requires_embedding":    models.CapEmbedding,
	"requires_reasoning":    models.CapReasoning,
	"requires_long_context": models.CapLongContext,
	"requires_moderation":   models.CapModeration,
}

// ExtractFeatures derives the scoring features from the query text
// and request context.
func ExtractFeatures(text string, opts models.SearchOptions) Features {
	f := Features{
		Complexity:    complexity(text),
		EthicalWeight: 0.5,
		Risk:          0.3,
	}

	if opts.ContextFlag("ethical_context") {
		f.EthicalWeight += 0.3
	}
	if opts.ContextFlag("user_impact") {
		f.EthicalWeight += 0.2
	}
	if opts.ContextFlag("social_impact") {
		f.EthicalWeight += 0.2
	}

	if opts.ContextFlag("contains_personal_info") {
		f.Risk += 0.3
	}
	if opts.ContextFlag("financial_context") {
		f.Risk += 0.2
	}
	if opts.ContextFlag("security_context") {
		f.Risk += 0.2
	}

	f.EthicalWeight = clamp01(f.EthicalWeight)
	f.Risk = clamp01(f.Risk)

	for flag, cap := range contextCapabilities {
		if opts.ContextFlag(flag) {
			f.Required = append(f.Required, cap)
		}
	}
	sort.Slice(f.Required, func(i, j int) bool { return f.Required[i] < f.Required[j] })
	return f
}

// Plan scores every enabled provider and returns the surviving
// candidates in descending score order. A set preferred model, when
// enabled, is pinned to the front of the plan regardless of score.
func (r *Router) Plan(text string, opts models.SearchOptions, providers []models.ProviderConfig) (models.CandidatePlan, Features) {
	features := ExtractFeatures(text, opts)

	var candidates []models.Candidate
	var preferred *models.Candidate

	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		if missing(p, features.Required) {
			continue
		}

		score := r.score(p, features)

		c := models.Candidate{ProviderID: p.ID, Score: score}
		if opts.PreferredModelID != "" && p.ID == opts.PreferredModelID {
			pinned := c
			preferred = &pinned
			continue
		}
		if score < r.cfg.MinScoreThreshold {
			continue
		}
		candidates = append(candidates, c)
	}

	r.sortCandidates(candidates, providers)

	if preferred != nil {
		candidates = append([]models.Candidate{*preferred}, candidates...)
	}
	return models.CandidatePlan(candidates), features
}

// score applies the baseline-plus-bonuses formula for one provider.
func (r *Router) score(p models.ProviderConfig, f Features) float64 {
	score := r.cfg.ProviderKindBaseline[string(p.Kind)]

	if f.Complexity > 0.7 && (p.HasCapability(models.CapLongContext) || p.HasCapability(models.CapReasoning)) {
		score += 0.2
	}
	if f.EthicalWeight > 0.7 && p.HasCapability(models.CapReasoning) {
		score += 0.3
	}
	if f.Risk > 0.7 && p.HighTrust {
		score += 0.2
	}
	for _, cap := range f.Required {
		if p.HasCapability(cap) {
			score += 0.2
		}
	}
	score -= r.cfg.CostPenaltyK * p.CostPer1KTokens
	return score
}

// sortCandidates orders by descending score, breaking ties on higher
// success rate, lower cost, lower priority rank, then id. The result
// is fully deterministic for identical inputs.
func (r *Router) sortCandidates(candidates []models.Candidate, providers []models.ProviderConfig) {
	byID := make(map[string]models.ProviderConfig, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := r.successRate(a.ProviderID), r.successRate(b.ProviderID)
		if ra != rb {
			return ra > rb
		}
		pa, pb := byID[a.ProviderID], byID[b.ProviderID]
		if pa.CostPer1KTokens != pb.CostPer1KTokens {
			return pa.CostPer1KTokens < pb.CostPer1KTokens
		}
		if pa.PriorityRank != pb.PriorityRank {
			return pa.PriorityRank < pb.PriorityRank
		}
		return a.ProviderID < b.ProviderID
	})
}

func (r *Router) successRate(id string) float64 {
	if r.stats == nil {
		return 1.0
	}
	return r.stats.SuccessRate(id)
}

func missing(p models.ProviderConfig, required []models.Capability) bool {
	for _, cap := range required {
		if !p.HasCapability(cap) {
			return true
		}
	}
	return false
}

// complexity blends length, vocabulary, special characters and
// sentence density into one normalized score.
func complexity(text string) float64 {
	length := clamp01(float64(len(text)) / 1000)

	tokens := strings.Fields(strings.ToLower(text))
	unique := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		unique[tok] = struct{}{}
	}
	uniqueScore := clamp01(float64(len(unique)) / 100)

	var specials, sentences int
	for _, r := range text {
		switch {
		case r == '.' || r == '!' || r == '?':
			sentences++
		case !isAlnumOrSpace(r):
			specials++
		}
	}
	specialFraction := 0.0
	if len(text) > 0 {
		specialFraction = clamp01(float64(specials) / float64(len(text)))
	}
	density := clamp01(float64(sentences) / 5)

	return clamp01(weightLength*length + weightUnique*uniqueScore +
		weightSpecials*specialFraction + weightDensity*density)
}

func isAlnumOrSpace(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' || r == '\t' || r == '\n'
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
