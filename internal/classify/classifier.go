// Package classify tags crawled sites with a business area and estimates how
// many pages a crawl of a given depth will yield.
package classify

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// OtherArea is returned when no keyword matches.
const OtherArea = "other"

// areaKeywords lists the supported areas in tie-break order.
var areaKeywords = []struct {
	area     string
	keywords []string
}{
	{"technology", []string{"technology", "tech", "software", "hardware", "tecnologia"}},
	{"health", []string{"health", "medicine", "medical", "wellness", "saúde", "medicina", "médico", "bem-estar"}},
	{"finance", []string{"finance", "banking", "investment", "money", "finanças", "banco", "investimento", "dinheiro"}},
	{"education", []string{"education", "school", "university", "learning", "educação", "escola", "universidade", "aprendizado"}},
	{"entertainment", []string{"entertainment", "movies", "music", "games", "entretenimento", "filmes", "música", "jogos"}},
	{"ecommerce", []string{"e-commerce", "shopping", "store", "compras", "loja", "varejo"}},
	{"social_media", []string{"social media", "community", "rede social", "comunidade"}},
	{"news", []string{"news", "publications", "notícias", "publicações", "jornal", "revista"}},
	{"travel", []string{"travel", "tourism", "viagens", "turismo", "destino", "hotel", "resort"}},
	{"public_services", []string{"public services", "government", "portais", "serviços públicos", "governo"}},
	{"blogs", []string{"blogs", "forums", "fóruns", "blog"}},
}

// SupportedAreas returns the labels the estimator accepts, in tie-break order.
func SupportedAreas() []string {
	areas := make([]string, len(areaKeywords))
	for i, a := range areaKeywords {
		areas[i] = a.area
	}
	return areas
}

// IsSupportedArea reports whether area is one of SupportedAreas.
func IsSupportedArea(area string) bool {
	for _, a := range areaKeywords {
		if a.area == area {
			return true
		}
	}
	return false
}

type phrase struct {
	areaIndex int
	tokens    []string
}

// KeywordClassifier scores page text against per-area keyword sets.
type KeywordClassifier struct {
	// phrases indexed by their first token
	byFirst map[string][]phrase
}

// NewKeywordClassifier builds the keyword index.
func NewKeywordClassifier() *KeywordClassifier {
	c := &KeywordClassifier{byFirst: make(map[string][]phrase)}
	for i, a := range areaKeywords {
		for _, kw := range a.keywords {
			tokens := tokenize(kw)
			c.byFirst[tokens[0]] = append(c.byFirst[tokens[0]], phrase{areaIndex: i, tokens: tokens})
		}
	}
	return c
}

// ClassifyText returns the area whose keywords occur most often in content,
// which may be HTML or plain text.
func (c *KeywordClassifier) ClassifyText(content string) string {
	scores := c.Score(content)

	best, bestScore := OtherArea, 0
	for _, a := range areaKeywords {
		if scores[a.area] > bestScore {
			best, bestScore = a.area, scores[a.area]
		}
	}
	return best
}

// Score counts keyword matches per area.
func (c *KeywordClassifier) Score(content string) map[string]int {
	tokens := tokenize(visibleText(content))
	scores := make(map[string]int, len(areaKeywords))

	for i, tok := range tokens {
		for _, p := range c.byFirst[tok] {
			if matchesAt(tokens, i, p.tokens) {
				scores[areaKeywords[p.areaIndex].area]++
			}
		}
	}
	return scores
}

func matchesAt(tokens []string, i int, want []string) bool {
	if i+len(want) > len(tokens) {
		return false
	}
	for j, w := range want {
		if tokens[i+j] != w {
			return false
		}
	}
	return true
}

// visibleText strips markup, scripts and styles.
func visibleText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	b.WriteString(doc.Find("title").Text())
	b.WriteByte(' ')
	b.WriteString(doc.Find("body").Text())
	return b.String()
}

// tokenize lowercases s and splits it into words. Hyphens inside a word are kept.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}
