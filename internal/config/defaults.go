package config

// Built-in English rule set. The rule language is explicit: deployments
// serving another language replace these lists in the config document
// rather than relying on code changes.

// DefaultHardBlocklist returns the prohibited-intent phrases that
// reject a query unconditionally.
func DefaultHardBlocklist() []string {
	return []string{
		"how to make a bomb",
		"how to build a weapon",
		"how to hack",
		"how to break into",
		"child sexual",
		"how to synthesize drugs",
		"how to produce drugs",
		"how to launder money",
		"how to defraud",
		"how to scam",
	}
}

// DefaultPrinciples returns the weighted soft-risk principles.
func DefaultPrinciples() []Principle {
	return []Principle{
		{
			ID:       "autonomy",
			Weight:   1.0,
			Keywords: []string{"force them", "coerce", "manipulate", "blackmail"},
		},
		{
			ID:       "non_maleficence",
			Weight:   1.0,
			Keywords: []string{"harm", "hurt", "injure", "poison"},
		},
		{
			ID:       "justice",
			Weight:   0.9,
			Keywords: []string{"discriminate", "prejudice", "unfair treatment"},
		},
		{
			ID:       "beneficence",
			Weight:   0.9,
			Keywords: []string{"exploit", "take advantage of", "deceive"},
		},
		{
			ID:       "privacy",
			Weight:   0.8,
			Keywords: []string{"expose their", "leak personal", "dox", "reveal private"},
		},
	}
}

// DefaultNegationTerms returns the words that, near a principle
// keyword, reduce its severity.
func DefaultNegationTerms() []string {
	return []string{"not", "never", "avoid", "prevent", "without", "against"}
}

// DefaultBiasIndicators maps indicator phrases to category labels.
func DefaultBiasIndicators() map[string]string {
	return map[string]string{
		"certainly":   "expression of absolute certainty",
		"obviously":   "assumes universal knowledge",
		"clearly":     "assumes unambiguous evidence",
		"undoubtedly": "unqualified assertion",
		"always":      "absolute temporal generalization",
		"never":       "absolute negation",
		"everyone":    "universal generalization",
		"no one":      "universal negation",
		"the best":    "comparative judgment without criteria",
		"the worst":   "comparative judgment without criteria",
		"we must":     "normative prescription without justification",
	}
}

// DefaultContrastiveMarkers returns the connectives whose collective
// absence the analyzer flags as a lack of qualifications.
func DefaultContrastiveMarkers() []string {
	return []string{"however", "nevertheless", "on the other hand", "that said", "although"}
}

// DefaultTrustedDomainsHigh returns domains scored at 0.9 reliability.
func DefaultTrustedDomainsHigh() []string {
	return []string{
		"wikipedia.org",
		".gov",
		".edu",
		"britannica.com",
		"nature.com",
		"sciencedirect.com",
		"nih.gov",
		"who.int",
		"bbc.com",
		"nytimes.com",
		"reuters.com",
		"bloomberg.com",
		"ft.com",
	}
}

// DefaultTrustedDomainsMedium returns domains scored at 0.7 reliability.
func DefaultTrustedDomainsMedium() []string {
	return []string{
		"github.com",
		"stackoverflow.com",
		"medium.com",
		"cnn.com",
		"theguardian.com",
		"forbes.com",
		"economist.com",
		"nationalgeographic.com",
	}
}
