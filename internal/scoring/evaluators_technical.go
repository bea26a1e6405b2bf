package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

func evaluatePageSpeed(doc *Document, c Criterion) Result {
	tech := doc.Item.Technical
	good, poor := c.Param("good_lcp_ms", 2500), c.Param("poor_lcp_ms", 4000)

	var score float64
	var message string
	details := map[string]interface{}{}

	switch {
	case tech.LCPMs > 0:
		lcp := tech.LCPMs
		details["lcp_ms"] = lcp
		switch {
		case lcp <= good:
			score = 100
		case lcp <= poor:
			score = 100 - 50*(lcp-good)/math.Max(1, poor-good)
		default:
			score = math.Max(0, 50-(lcp-poor)/100)
		}
		message = fmt.Sprintf("Largest contentful paint is %.0fms", lcp)
	case tech.LoadTimeMs > 0:
		load := tech.LoadTimeMs
		details["load_time_ms"] = load
		switch {
		case load <= 2000:
			score = 100
		case load <= 5000:
			score = 100 - 60*(load-2000)/3000
		default:
			score = math.Max(0, 40-(load-5000)/200)
		}
		message = fmt.Sprintf("Page loads in %.0fms", load)
	default:
		return Result{
			Score:          50,
			Message:        "No performance data available",
			Recommendation: "Collect Core Web Vitals for this page",
		}
	}

	if tech.CLS > 0.25 {
		score -= 30
	} else if tech.CLS > 0.1 {
		score -= 15
	}
	details["cls"] = tech.CLS

	var recs []string
	if score < 90 {
		recs = append(recs, "Improve loading performance by compressing images, deferring scripts and caching assets")
	}
	if tech.CLS > 0.1 {
		recs = append(recs, "Reduce layout shift by reserving space for images and embeds")
	}
	return Result{Score: score, Message: message, Recommendation: strings.Join(recs, ". "), Details: details}
}

func evaluateMobileOptimization(doc *Document, _ Criterion) Result {
	score := 0.0
	var recs []string
	if doc.HasViewport {
		score += 50
	} else {
		recs = append(recs, "Add a responsive viewport meta tag")
	}
	if doc.Item.Technical.MobileFriendly {
		score += 50
	} else {
		recs = append(recs, "Make the layout mobile friendly")
	}

	message := "Page is mobile friendly"
	if len(recs) > 0 {
		message = "Page is not fully optimized for mobile"
	}
	return Result{
		Score:          score,
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"viewport":        doc.HasViewport,
			"mobile_friendly": doc.Item.Technical.MobileFriendly,
		},
	}
}

func evaluateCrawlability(doc *Document, _ Criterion) Result {
	tech := doc.Item.Technical
	score := 0.0
	var issues, recs []string

	if tech.StatusCode == 0 || tech.StatusCode == 200 {
		score += 40
	} else {
		issues = append(issues, fmt.Sprintf("Page returns HTTP %d", tech.StatusCode))
		recs = append(recs, "Make sure the page returns HTTP 200")
	}

	if !tech.Noindex && !doc.RobotsNoindex {
		score += 30
	} else {
		issues = append(issues, "Page is marked noindex")
		recs = append(recs, "Remove the noindex directive if the page should rank")
	}

	if !tech.BlockedByRobots {
		score += 20
	} else {
		issues = append(issues, "Page is blocked by robots.txt")
		recs = append(recs, "Allow crawling of this URL in robots.txt")
	}

	if tech.InSitemap {
		score += 10
	} else {
		recs = append(recs, "Add the page to the XML sitemap")
	}

	message := "Page is crawlable and indexable"
	if len(issues) > 0 {
		message = strings.Join(issues, ". ")
	}
	return Result{Score: score, Message: message, Recommendation: strings.Join(recs, ". ")}
}

func evaluateSecurity(doc *Document, _ Criterion) Result {
	https := doc.Item.Technical.HTTPS || strings.HasPrefix(strings.ToLower(doc.Item.URL), "https://")
	if !https {
		return Result{
			Score:          0,
			Message:        "Page is not served over HTTPS",
			Recommendation: "Serve the page over HTTPS",
		}
	}
	if doc.Item.Technical.MixedContent {
		return Result{
			Score:          70,
			Message:        "Page loads mixed content",
			Recommendation: "Load every resource over HTTPS",
		}
	}
	return Result{Score: 100, Message: "Page is served securely"}
}

var articleSchemaTypes = map[string]bool{
	"article":     true,
	"blogposting": true,
	"newsarticle": true,
	"product":     true,
	"howto":       true,
	"faqpage":     true,
}

func evaluateSchemaMarkup(doc *Document, _ Criterion) Result {
	if len(doc.JSONLD) == 0 {
		return Result{
			Score:          20,
			Message:        "No structured data found",
			Recommendation: "Add JSON-LD structured data such as Article or BlogPosting",
		}
	}

	best := 40.0
	var found []string
	for _, raw := range doc.JSONLD {
		for _, t := range schemaTypes(raw) {
			found = append(found, t)
			score := 80.0
			if articleSchemaTypes[strings.ToLower(t)] {
				score = 100
			}
			best = math.Max(best, score)
		}
	}

	result := Result{Score: best, Details: map[string]interface{}{"types": found}}
	switch {
	case best >= 100:
		result.Message = "Structured data describes the content type"
	case best >= 80:
		result.Message = "Structured data found"
		result.Recommendation = "Use a content-specific schema type such as Article"
	default:
		result.Message = "Structured data is invalid"
		result.Recommendation = "Fix the JSON-LD syntax and declare an @type"
	}
	return result
}

// schemaTypes returns the @type values of a JSON-LD block, including @graph
// members. Invalid JSON yields nothing.
func schemaTypes(raw string) []string {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}

	var types []string
	var walk func(interface{})
	walk = func(node interface{}) {
		switch n := node.(type) {
		case []interface{}:
			for _, item := range n {
				walk(item)
			}
		case map[string]interface{}:
			switch t := n["@type"].(type) {
			case string:
				types = append(types, t)
			case []interface{}:
				for _, s := range t {
					if str, ok := s.(string); ok {
						types = append(types, str)
					}
				}
			}
			if g, ok := n["@graph"]; ok {
				walk(g)
			}
		}
	}
	walk(v)
	return types
}

func evaluateCanonical(doc *Document, _ Criterion) Result {
	switch len(doc.Canonicals) {
	case 0:
		return Result{
			Score:          30,
			Message:        "Canonical URL is missing",
			Recommendation: "Add a canonical link to the page's preferred URL",
		}
	case 1:
	default:
		return Result{
			Score:          40,
			Message:        fmt.Sprintf("Page declares %d canonical URLs", len(doc.Canonicals)),
			Recommendation: "Declare exactly one canonical URL",
		}
	}

	canonical := doc.Canonicals[0]
	if doc.Item.URL != "" && !sameURL(canonical, doc.Item.URL) {
		return Result{
			Score:          60,
			Message:        "Canonical URL points to a different page",
			Recommendation: "Point the canonical link at this page unless it is a deliberate duplicate",
			Details:        map[string]interface{}{"canonical": canonical},
		}
	}
	return Result{Score: 100, Message: "Canonical URL is set", Details: map[string]interface{}{"canonical": canonical}}
}

func sameURL(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "/")
	}
	return norm(a) == norm(b)
}
