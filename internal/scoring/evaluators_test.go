package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/models"
)

func TestNewDocument(t *testing.T) {
	item := &models.ContentItem{
		URL:    "https://example.com/post",
		Status: "published",
		Head: `<meta name="viewport" content="width=device-width">
<meta name="robots" content="noindex, follow">
<meta property="og:title" content="Post">
<link rel="canonical" href="https://example.com/post">
<script type="application/ld+json">{"@type":"Article"}</script>`,
		Body: `<h1>Title</h1><p>The cat sat on the mat.</p>
<h2>Section</h2><p>First sentence here. Second one!</p>
<script>var ignored = "not text";</script>
<ul><li>one</li><li>two</li></ul>
<a href="/internal">inside</a><a href="https://other.org/x">outside</a><a href="#top">skip</a>
<img src="/a.png" alt="A" width="1" height="1" loading="lazy"><img src="/b.png">
<button>Go</button>`,
	}

	doc, err := NewDocument(item)
	require.NoError(t, err)

	assert.Equal(t, []string{"Title"}, doc.Headings[1])
	assert.Equal(t, []string{"Section"}, doc.Headings[2])
	assert.Equal(t, []int{1, 2}, doc.HeadingLevels)
	assert.Len(t, doc.Paragraphs, 2)
	assert.NotContains(t, doc.Text, "ignored")

	require.Len(t, doc.Links, 2)
	assert.True(t, doc.Links[0].Internal)
	assert.False(t, doc.Links[1].Internal)
	assert.Equal(t, 1, doc.InternalLinks())

	require.Len(t, doc.Images, 2)
	assert.True(t, doc.Images[0].HasAlt)
	assert.True(t, doc.Images[0].HasDimensions)
	assert.True(t, doc.Images[0].Lazy)
	assert.False(t, doc.Images[1].HasAlt)

	assert.True(t, doc.HasViewport)
	assert.True(t, doc.RobotsNoindex)
	assert.Equal(t, "Post", doc.Meta["og:title"])
	assert.Equal(t, []string{"https://example.com/post"}, doc.Canonicals)
	assert.Len(t, doc.JSONLD, 1)
	assert.Equal(t, 1, doc.CTAs)
	assert.Equal(t, 1, doc.Lists)

	_, err = NewDocument(nil)
	assert.Error(t, err)
}

func TestFleschReadingEase(t *testing.T) {
	doc := mustDocument(t, &models.ContentItem{Body: "<p>The cat sat on the mat.</p>"})

	assert.Equal(t, 6, doc.WordCount())
	assert.Equal(t, 6, doc.Syllables())
	assert.InDelta(t, 116.145, doc.FleschReadingEase(), 1e-9)

	empty := mustDocument(t, &models.ContentItem{})
	assert.Equal(t, 0.0, empty.FleschReadingEase())
}

func TestTitleEngagement(t *testing.T) {
	assert.Equal(t, 50.0, TitleEngagement("A plain title"))
	assert.Equal(t, 97.0, TitleEngagement("How to Build 5 Amazing Apps?"))
}

func TestEvaluateTitle(t *testing.T) {
	criterion := Criterion{Name: "title_optimization", Params: map[string]float64{"min_length": 30, "max_length": 60}}

	tests := []struct {
		name       string
		title      string
		keyword    string
		duplicates int
		expected   float64
	}{
		{"keyword first and numbers", "SEO Guide: 10 Steps to Better Rankings Today", "seo guide", 0, 97},
		{"too short without keyword", "Short title", "", 0, 55},
		{"too long and duplicated", "The Complete Guide to Content Marketing for Small Businesses in 2024 and Beyond", "content marketing", 2, 58},
		{"keyword missing", "SEO Guide: 10 Steps to Better Rankings Today", "widgets", 0, 67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDocument(t, &models.ContentItem{Title: tt.title, FocusKeyword: tt.keyword, DuplicateTitles: tt.duplicates})
			result := evaluateTitle(doc, criterion)
			assert.Equal(t, tt.expected, result.Score)
		})
	}
}

func TestEvaluateMetaDescription(t *testing.T) {
	criterion := Criterion{Params: map[string]float64{"min_length": 150, "max_length": 160}}

	missing := evaluateMetaDescription(mustDocument(t, &models.ContentItem{}), criterion)
	assert.Equal(t, 0.0, missing.Score)
	assert.NotEmpty(t, missing.Recommendation)

	desc := "Widgets " + strings.Repeat("x", 147)
	require.Len(t, desc, 155)
	full := evaluateMetaDescription(mustDocument(t, &models.ContentItem{
		Title:           "Widgets",
		FocusKeyword:    "widgets",
		MetaDescription: desc,
	}), criterion)
	assert.Equal(t, 100.0, full.Score)

	fromHead := evaluateMetaDescription(mustDocument(t, &models.ContentItem{
		Head: `<meta name="description" content="Short">`,
	}), criterion)
	assert.Greater(t, fromHead.Score, 0.0)
}

func TestEvaluateContentLength(t *testing.T) {
	criterion := Criterion{Params: map[string]float64{"min_words": 300, "optimal_words": 1500}}

	assert.Equal(t, 35.0, evaluateContentLength(wordsDocument(t, 150), criterion).Score)
	assert.Equal(t, 70.0, evaluateContentLength(wordsDocument(t, 300), criterion).Score)
	assert.Equal(t, 85.0, evaluateContentLength(wordsDocument(t, 900), criterion).Score)
	assert.Equal(t, 100.0, evaluateContentLength(wordsDocument(t, 2000), criterion).Score)
}

func TestEvaluateKeywordOptimization(t *testing.T) {
	criterion := Criterion{Params: map[string]float64{"min_density": 0.5, "max_density": 2.5}}

	body := "<h2>Why widgets matter</h2><p>Widgets help teams.</p><p>" + strings.Repeat("lorem ", 194) + "</p>"
	doc := mustDocument(t, &models.ContentItem{
		Slug:            "widgets-guide",
		FocusKeyword:    "widgets",
		MetaDescription: "All about widgets",
		Body:            body,
	})
	require.Equal(t, 200, doc.WordCount())

	result := evaluateKeywordOptimization(doc, criterion)
	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, 1.0, result.Details["density"])

	noKeyword := evaluateKeywordOptimization(doc.withKeyword(""), criterion)
	assert.Equal(t, 50.0, noKeyword.Score)
}

func TestEvaluateInternalLinking(t *testing.T) {
	doc := mustDocument(t, &models.ContentItem{
		URL: "https://example.com/post",
		Body: `<p><a href="/a">a</a> <a href="https://example.com/b">b</a>
<a href="https://www.example.com/c">c</a> <a href="https://other.org/d">d</a></p>`,
	})

	result := evaluateInternalLinking(doc, Criterion{Params: map[string]float64{"min_links": 2, "optimal_links": 5}})
	assert.Equal(t, 80.0, result.Score)
	assert.Equal(t, 3, result.Details["internal_links"])
}

func TestEvaluatePageSpeed(t *testing.T) {
	criterion := Criterion{Params: map[string]float64{"good_lcp_ms": 2500, "poor_lcp_ms": 4000}}

	lcp := techDocument(t, models.TechnicalSignals{LCPMs: 3250, CLS: 0.2})
	assert.Equal(t, 60.0, evaluatePageSpeed(lcp, criterion).Score)

	load := techDocument(t, models.TechnicalSignals{LoadTimeMs: 3500})
	assert.Equal(t, 70.0, evaluatePageSpeed(load, criterion).Score)

	none := techDocument(t, models.TechnicalSignals{})
	assert.Equal(t, 50.0, evaluatePageSpeed(none, criterion).Score)
}

func TestEvaluateSecurityAndCrawlability(t *testing.T) {
	insecure := mustDocument(t, &models.ContentItem{URL: "http://example.com"})
	assert.Equal(t, 0.0, evaluateSecurity(insecure, Criterion{}).Score)

	mixed := techDocument(t, models.TechnicalSignals{HTTPS: true, MixedContent: true})
	assert.Equal(t, 70.0, evaluateSecurity(mixed, Criterion{}).Score)

	healthy := techDocument(t, models.TechnicalSignals{StatusCode: 200, InSitemap: true})
	assert.Equal(t, 100.0, evaluateCrawlability(healthy, Criterion{}).Score)

	blocked := techDocument(t, models.TechnicalSignals{StatusCode: 404, Noindex: true})
	assert.Equal(t, 20.0, evaluateCrawlability(blocked, Criterion{}).Score)
}

func TestEvaluateSchemaMarkup(t *testing.T) {
	tests := []struct {
		name     string
		head     string
		expected float64
	}{
		{"none", "", 20},
		{"invalid", `<script type="application/ld+json">{not json</script>`, 40},
		{"generic type", `<script type="application/ld+json">{"@type":"Organization"}</script>`, 80},
		{"article", `<script type="application/ld+json">{"@type":"Article"}</script>`, 100},
		{"graph", `<script type="application/ld+json">{"@graph":[{"@type":"WebSite"},{"@type":"BlogPosting"}]}</script>`, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDocument(t, &models.ContentItem{Head: tt.head})
			assert.Equal(t, tt.expected, evaluateSchemaMarkup(doc, Criterion{}).Score)
		})
	}
}

func TestEvaluateCanonical(t *testing.T) {
	url := "https://example.com/post"
	canonical := func(hrefs ...string) *Document {
		head := ""
		for _, h := range hrefs {
			head += `<link rel="canonical" href="` + h + `">`
		}
		return mustDocument(t, &models.ContentItem{URL: url, Head: head})
	}

	assert.Equal(t, 30.0, evaluateCanonical(canonical(), Criterion{}).Score)
	assert.Equal(t, 100.0, evaluateCanonical(canonical(url+"/"), Criterion{}).Score)
	assert.Equal(t, 60.0, evaluateCanonical(canonical("https://example.com/other"), Criterion{}).Score)
	assert.Equal(t, 40.0, evaluateCanonical(canonical(url, url), Criterion{}).Score)
}

func TestEvaluateSocialTags(t *testing.T) {
	doc := mustDocument(t, &models.ContentItem{Head: `<meta property="og:title" content="T">
<meta property="og:image" content="i.png">
<meta name="twitter:card" content="summary">
<meta name="twitter:title" content="T">`})

	og := evaluateOpenGraph(doc, Criterion{})
	assert.Equal(t, 40.0, og.Score)
	assert.Equal(t, []string{"og:description", "og:url", "og:type"}, og.Details["missing"])

	assert.Equal(t, 60.0, evaluateTwitterCards(doc, Criterion{}).Score)
}

func TestEvaluateSocialSharing(t *testing.T) {
	doc := mustDocument(t, &models.ContentItem{Social: models.SocialSignals{Shares: 99, ShareButtons: true}})
	assert.InDelta(t, 90.0, evaluateSocialSharing(doc, Criterion{}).Score, 1e-9)

	none := mustDocument(t, &models.ContentItem{})
	assert.Equal(t, 0.0, evaluateSocialSharing(none, Criterion{}).Score)
}

func TestEvaluateAccessibility(t *testing.T) {
	doc := mustDocument(t, &models.ContentItem{Body: `<h1>Top</h1><h3>Skipped</h3>
<p><img src="a.png" alt="chart"><img src="b.png">
<a href="/x">click here</a> <a href="/y">pricing details</a></p>`})

	assert.Equal(t, 35.0, evaluateAccessibility(doc, Criterion{}).Score)
}

func TestEvaluatePageLayout(t *testing.T) {
	body := "<h1>Guide</h1><h2>One</h2><p>" + strings.Repeat("word ", 100) + "</p>" +
		"<h2>Two</h2><p>" + strings.Repeat("word ", 100) + "</p>"
	doc := mustDocument(t, &models.ContentItem{Body: body})
	assert.Equal(t, 100.0, evaluatePageLayout(doc, Criterion{}).Score)
}

func TestEvaluateEngagementAndConversion(t *testing.T) {
	doc := mustDocument(t, &models.ContentItem{
		Body:       "<p>Text</p><button>Buy</button><form></form>",
		Engagement: models.EngagementSignals{AvgTimeOnPage: 90, BounceRate: 0.5, ScrollDepth: 0.5, ConversionRate: 0.01},
	})

	// 20 + 15 + 15
	assert.InDelta(t, 50.0, evaluateEngagement(doc, Criterion{}).Score, 1e-9)
	// two CTAs plus 1% conversion
	assert.InDelta(t, 80.0, evaluateConversion(doc, Criterion{}).Score, 1e-9)

	empty := mustDocument(t, &models.ContentItem{})
	assert.Equal(t, 50.0, evaluateEngagement(empty, Criterion{}).Score)
}

func TestRegistryEvaluateClampsScores(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEvaluatorFunc("over", func(*Document, Criterion) Result { return Result{Score: 140} }))
	r.Register(NewEvaluatorFunc("under", func(*Document, Criterion) Result { return Result{Score: -5} }))
	doc := mustDocument(t, &models.ContentItem{})

	assert.Equal(t, 100.0, r.evaluate(doc, "c", Criterion{Name: "over"}).Score)
	assert.Equal(t, 0.0, r.evaluate(doc, "c", Criterion{Name: "under"}).Score)
	assert.Equal(t, []string{"over", "under"}, r.Names())
}

// Helper functions

func mustDocument(t *testing.T, item *models.ContentItem) *Document {
	t.Helper()
	doc, err := NewDocument(item)
	require.NoError(t, err)
	return doc
}

func wordsDocument(t *testing.T, words int) *Document {
	return mustDocument(t, &models.ContentItem{Body: "<p>" + strings.Repeat("word ", words) + "</p>"})
}

func techDocument(t *testing.T, tech models.TechnicalSignals) *Document {
	return mustDocument(t, &models.ContentItem{Technical: tech})
}

func (d *Document) withKeyword(keyword string) *Document {
	item := *d.Item
	item.FocusKeyword = keyword
	clone := *d
	clone.Item = &item
	return &clone
}
