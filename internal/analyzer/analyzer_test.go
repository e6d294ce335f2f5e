package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/models"
)

func testAnalyzer() *Analyzer {
	return New(config.EthicsConfig{
		TrustedDomainsHigh:   config.DefaultTrustedDomainsHigh(),
		TrustedDomainsMedium: config.DefaultTrustedDomainsMedium(),
		BiasIndicators:       config.DefaultBiasIndicators(),
		ContrastiveMarkers:   config.DefaultContrastiveMarkers(),
	})
}

const parisReply = "Paris. [1] Wikipedia: https://en.wikipedia.org/wiki/Paris"

func TestAnalyzeExplicitCitation(t *testing.T) {
	a := testAnalyzer()

	sources, report := a.Analyze(parisReply, models.LevelNormal)
	require.Len(t, sources, 1)

	assert.Equal(t, "1", sources[0].RefID)
	assert.Equal(t, "Wikipedia", sources[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", sources[0].URL)
	assert.Equal(t, 0.9, sources[0].Reliability)
	assert.Equal(t, models.ExtractionExplicitListing, sources[0].ExtractionMethod)

	assert.True(t, report.HasSources)
	assert.Equal(t, 1, report.SourceCount)
	assert.Greater(t, report.Confidence, 0.5)
}

func TestAnalyzeBareURL(t *testing.T) {
	a := testAnalyzer()

	sources, _ := a.Analyze("See https://example.com/article for details.", models.LevelMinimal)
	require.Len(t, sources, 1)

	assert.Equal(t, "example.com", sources[0].Title)
	assert.Equal(t, "https://example.com/article", sources[0].URL)
	assert.Equal(t, 0.5, sources[0].Reliability)
	assert.Equal(t, models.ExtractionURL, sources[0].ExtractionMethod)
}

func TestAnalyzeExplicitURLNotDuplicated(t *testing.T) {
	a := testAnalyzer()

	sources, _ := a.Analyze(parisReply, models.LevelNormal)
	assert.Len(t, sources, 1, "the cited URL must not be re-captured by the bare sweep")
}

func TestAnalyzeReliabilityTiers(t *testing.T) {
	a := testAnalyzer()

	tests := []struct {
		url  string
		want float64
	}{
		{"https://en.wikipedia.org/wiki/Go", 0.9},
		{"https://www.nih.gov/research", 0.9},
		{"https://stanford.edu/paper", 0.9},
		{"https://github.com/golang/go", 0.7},
		{"https://stackoverflow.com/q/1", 0.7},
		{"https://random-blog.io/post", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, a.reliability(tt.url))
		})
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := testAnalyzer()
	reply := "Certainly the best. [1] Wikipedia: https://en.wikipedia.org/wiki/Paris and https://example.com/x"

	sources1, report1 := a.Analyze(reply, models.LevelStrict)
	sources2, report2 := a.Analyze(reply, models.LevelStrict)

	assert.Equal(t, sources1, sources2)
	assert.Equal(t, report1, report2)
}

func TestAnalyzeBiasIndicators(t *testing.T) {
	a := testAnalyzer()

	_, report := a.Analyze("This is certainly true and obviously everyone agrees.", models.LevelMinimal)

	assert.NotEmpty(t, report.PotentialBiases)
	joined := ""
	for _, b := range report.PotentialBiases {
		joined += b + ";"
	}
	assert.Contains(t, joined, "certainly")
	assert.Contains(t, joined, "obviously")
	assert.Contains(t, joined, "everyone")
}

func TestAnalyzeLackOfQualifications(t *testing.T) {
	a := testAnalyzer()

	long := "The answer is plain and the conclusion is settled and there is only one way to read the evidence "
	long += "because every study points the same direction and the debate is finished for all practical purposes "
	long += "so any remaining doubt can be safely ignored by a careful reader of this material today"

	_, report := a.Analyze(long, models.LevelMinimal)
	found := false
	for _, b := range report.PotentialBiases {
		if b == "lack of qualifications: one-sided presentation" {
			found = true
		}
	}
	assert.True(t, found)

	_, report = a.Analyze(long+" However, some disagree.", models.LevelMinimal)
	for _, b := range report.PotentialBiases {
		assert.NotEqual(t, "lack of qualifications: one-sided presentation", b)
	}

	// Short replies are flagged the same way.
	_, report = a.Analyze("It is certainly Paris.", models.LevelNormal)
	assert.Contains(t, report.PotentialBiases, "lack of qualifications: one-sided presentation")

	_, report = a.Analyze("Probably Paris, although sources differ.", models.LevelNormal)
	for _, b := range report.PotentialBiases {
		assert.NotEqual(t, "lack of qualifications: one-sided presentation", b)
	}
}

func TestConsistencySingleSource(t *testing.T) {
	a := testAnalyzer()

	sources, report := a.Analyze(parisReply, models.LevelNormal)
	require.Len(t, sources, 1)
	assert.Equal(t, 1.0, report.SourceConsistency)
}

func TestConsistencyMixedReliability(t *testing.T) {
	a := testAnalyzer()

	reply := "[1] Wikipedia: https://en.wikipedia.org/wiki/A\n[2] Blog: https://some-blog.net/post"
	_, report := a.Analyze(reply, models.LevelNormal)

	// Reliabilities 0.9 and 0.5: variance 0.04, consistency 0.92.
	assert.InDelta(t, 0.92, report.SourceConsistency, 1e-9)
}

func TestConfidenceNoSources(t *testing.T) {
	a := testAnalyzer()

	_, report := a.Analyze("It's Paris.", models.LevelStrict)
	assert.Equal(t, 0.2, report.Confidence)
	assert.False(t, report.HasSources)
	assert.False(t, report.Passed)
}

func TestConfidenceBounds(t *testing.T) {
	a := testAnalyzer()

	reply := ""
	for i := 0; i < 8; i++ {
		reply += "[1] Wikipedia: https://en.wikipedia.org/wiki/Page" + string(rune('a'+i)) + "\n"
	}
	_, report := a.Analyze(reply, models.LevelNormal)
	assert.LessOrEqual(t, report.Confidence, 1.0)
	assert.GreaterOrEqual(t, report.Confidence, 0.0)
}

func TestValidationMonotonicity(t *testing.T) {
	a := testAnalyzer()

	replies := []string{
		"It's Paris.",
		parisReply,
		"[1] Wikipedia: https://en.wikipedia.org/wiki/A\n[2] Nature: https://www.nature.com/articles/x",
		"See https://random-blog.io/a and https://other-blog.io/b",
	}

	for _, reply := range replies {
		_, minimal := a.Analyze(reply, models.LevelMinimal)
		_, normal := a.Analyze(reply, models.LevelNormal)
		_, strict := a.Analyze(reply, models.LevelStrict)

		if strict.Passed {
			assert.True(t, normal.Passed, "strict pass implies normal pass: %q", reply)
		}
		if normal.Passed {
			assert.True(t, minimal.Passed, "normal pass implies minimal pass: %q", reply)
		}
	}
}

func TestStrictValidation(t *testing.T) {
	a := testAnalyzer()

	// Two high-trust sources clear every strict gate.
	reply := "[1] Wikipedia: https://en.wikipedia.org/wiki/A\n[2] Nature: https://www.nature.com/articles/x"
	_, report := a.Analyze(reply, models.LevelStrict)
	assert.True(t, report.Passed)

	// One source fails the strict count requirement.
	_, report = a.Analyze(parisReply, models.LevelStrict)
	assert.False(t, report.Passed)
}
