package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordClassifier_ClassifyText(t *testing.T) {
	classifier := NewKeywordClassifier()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "technology_html",
			content:  `<html><head><title>Acme Software</title></head><body><p>We build software and hardware. Tech news daily.</p></body></html>`,
			expected: "technology",
		},
		{
			name:     "portuguese_health",
			content:  `<html><body><h1>Saúde e bem-estar</h1><p>Medicina para toda a família, saúde em primeiro lugar.</p></body></html>`,
			expected: "health",
		},
		{
			name:     "multi_word_phrase",
			content:  `<p>Join our social media community. Social media tips every week.</p>`,
			expected: "social_media",
		},
		{
			name:     "public_services_portuguese_phrase",
			content:  `<p>Portal de serviços públicos do governo. Serviços públicos digitais.</p>`,
			expected: "public_services",
		},
		{
			name:     "ignores_script_and_style",
			content:  `<html><head><style>.money{}</style><script>var money = "money money";</script></head><body><p>Our hotel is a travel favourite.</p></body></html>`,
			expected: "travel",
		},
		{
			name:     "no_match_is_other",
			content:  `<html><body><p>Lorem ipsum dolor sit amet.</p></body></html>`,
			expected: OtherArea,
		},
		{
			name:     "empty",
			content:  "",
			expected: OtherArea,
		},
		{
			name:     "plain_text",
			content:  "University courses and school learning resources",
			expected: "education",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.ClassifyText(tt.content))
		})
	}
}

func TestKeywordClassifier_TieBreaksByAreaOrder(t *testing.T) {
	classifier := NewKeywordClassifier()

	// one technology keyword and one finance keyword; technology is listed first
	assert.Equal(t, "technology", classifier.ClassifyText("<p>money software</p>"))
}

func TestKeywordClassifier_WholeWordsOnly(t *testing.T) {
	classifier := NewKeywordClassifier()

	scores := classifier.Score("<p>technological storefront blogsphere</p>")
	assert.Empty(t, scores)
}

func TestKeywordClassifier_Score(t *testing.T) {
	classifier := NewKeywordClassifier()

	scores := classifier.Score("<p>E-commerce store, shopping and more shopping. Blog.</p>")
	assert.Equal(t, 4, scores["ecommerce"])
	assert.Equal(t, 1, scores["blogs"])
}

func TestSupportedAreas(t *testing.T) {
	areas := SupportedAreas()

	assert.Len(t, areas, 11)
	assert.Equal(t, "technology", areas[0])
	assert.Equal(t, "blogs", areas[10])
	assert.True(t, IsSupportedArea("public_services"))
	assert.False(t, IsSupportedArea(OtherArea))
}
