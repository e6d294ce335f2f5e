// Package analyzer inspects model replies after the fact: it extracts
// cited sources, scores their reliability by domain, flags loaded
// phrasing, and issues a pass/fail verdict per validation level. The
// reply text itself is never modified.
package analyzer

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/models"
)

// Reliability tiers by domain trust.
const (
	reliabilityHigh    = 0.9
	reliabilityMedium  = 0.7
	reliabilityDefault = 0.5

	// Confidence floor when a reply cites nothing at all.
	confidenceNoSources = 0.2
)

var (
	// explicitSourcePattern matches numbered citation lines of the
	// form "[1] Title: https://example.org/page".
	explicitSourcePattern = regexp.MustCompile(`\[(\d+)\]\s+([^:]+):\s+(https?://\S+)`)

	bareURLPattern = regexp.MustCompile(`https?://\S+`)
)

// Analyzer validates replies against configured trust and bias lists.
type Analyzer struct {
	highTrust          []string
	mediumTrust        []string
	biasIndicators     map[string]string
	contrastiveMarkers []string
}

// New creates an analyzer from the ethics rule configuration.
func New(cfg config.EthicsConfig) *Analyzer {
	return &Analyzer{
		highTrust:          cfg.TrustedDomainsHigh,
		mediumTrust:        cfg.TrustedDomainsMedium,
		biasIndicators:     cfg.BiasIndicators,
		contrastiveMarkers: cfg.ContrastiveMarkers,
	}
}

// Analyze extracts sources and produces the validation report for the
// given level. The returned sources keep the order they appear in the
// text, explicit citations first.
func (a *Analyzer) Analyze(content string, level models.ValidationLevel) ([]models.Source, models.ValidationReport) {
	sources := a.extractSources(content)

	report := models.ValidationReport{
		HasSources:        len(sources) > 0,
		SourceCount:       len(sources),
		SourceConsistency: consistency(sources),
		PotentialBiases:   a.detectBiases(content),
		Confidence:        confidence(sources),
	}
	report.Passed = passed(report, level)
	return sources, report
}

// extractSources runs the explicit citation pattern first and then
// sweeps remaining bare URLs.
func (a *Analyzer) extractSources(content string) []models.Source {
	var sources []models.Source
	seen := make(map[string]struct{})

	for _, m := range explicitSourcePattern.FindAllStringSubmatch(content, -1) {
		u := trimTrailingPunct(m[3])
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		sources = append(sources, models.Source{
			RefID:            m[1],
			Title:            strings.TrimSpace(m[2]),
			URL:              u,
			Reliability:      a.reliability(u),
			ExtractionMethod: models.ExtractionExplicitListing,
		})
	}

	for _, raw := range bareURLPattern.FindAllString(content, -1) {
		u := trimTrailingPunct(raw)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		sources = append(sources, models.Source{
			RefID:            fmt.Sprintf("%d", len(sources)+1),
			Title:            hostOf(u),
			URL:              u,
			Reliability:      a.reliability(u),
			ExtractionMethod: models.ExtractionURL,
		})
	}
	return sources
}

// reliability assigns the trust tier for a URL's domain.
func (a *Analyzer) reliability(rawURL string) float64 {
	host := strings.ToLower(hostOf(rawURL))
	for _, d := range a.highTrust {
		if matchDomain(host, d) {
			return reliabilityHigh
		}
	}
	for _, d := range a.mediumTrust {
		if matchDomain(host, d) {
			return reliabilityMedium
		}
	}
	return reliabilityDefault
}

// detectBiases scans for loaded phrasing. Indicator keys are visited
// in sorted order so the report is deterministic.
func (a *Analyzer) detectBiases(content string) []string {
	lowered := strings.ToLower(content)

	phrases := make([]string, 0, len(a.biasIndicators))
	for phrase := range a.biasIndicators {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	var found []string
	for _, phrase := range phrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			found = append(found, phrase+": "+a.biasIndicators[phrase])
		}
	}

	hasContrast := false
	for _, marker := range a.contrastiveMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			hasContrast = true
			break
		}
	}
	if !hasContrast {
		found = append(found, "lack of qualifications: one-sided presentation")
	}
	return found
}

// consistency is 1.0 for at most one source, otherwise shrinks with
// the variance of the reliability scores.
func consistency(sources []models.Source) float64 {
	if len(sources) <= 1 {
		return 1.0
	}
	mean := meanReliability(sources)
	var variance float64
	for _, s := range sources {
		d := s.Reliability - mean
		variance += d * d
	}
	variance /= float64(len(sources))

	penalty := 2 * variance
	if penalty > 0.5 {
		penalty = 0.5
	}
	return 1 - penalty
}

func confidence(sources []models.Source) float64 {
	if len(sources) == 0 {
		return confidenceNoSources
	}
	countScore := float64(len(sources)) / 5
	if countScore > 1 {
		countScore = 1
	}
	c := 0.5*countScore + 0.5*meanReliability(sources)
	if c > 1 {
		c = 1
	}
	return c
}

func passed(r models.ValidationReport, level models.ValidationLevel) bool {
	switch level {
	case models.LevelStrict:
		return r.SourceCount >= 2 && r.Confidence >= 0.6 && r.SourceConsistency >= 0.5
	case models.LevelMinimal:
		return r.HasSources
	default:
		return r.HasSources && r.Confidence >= 0.3
	}
}

func meanReliability(sources []models.Source) float64 {
	var sum float64
	for _, s := range sources {
		sum += s.Reliability
	}
	return sum / float64(len(sources))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// matchDomain treats entries starting with a dot as suffix rules
// (".gov" matches any government host) and everything else as a
// substring of the host.
func matchDomain(host, domain string) bool {
	domain = strings.ToLower(domain)
	if strings.HasPrefix(domain, ".") {
		return strings.HasSuffix(host, domain) || strings.Contains(host, domain+":")
	}
	return strings.Contains(host, domain)
}

func trimTrailingPunct(u string) string {
	return strings.TrimRight(u, ".,;:)]}\"'")
}
