package scoring

import (
	"fmt"
	"math"
	"strings"
)

var vagueLinkText = map[string]bool{
	"":           true,
	"click here": true,
	"here":       true,
	"read more":  true,
	"more":       true,
	"link":       true,
}

func evaluatePageLayout(doc *Document, _ Criterion) Result {
	score := 0.0
	var recs []string

	switch h1 := len(doc.Headings[1]); {
	case h1 == 1:
		score += 30
	case h1 == 0:
		// themes usually render the title as the H1
		score += 20
	default:
		score += 10
		recs = append(recs, "Use a single H1 per page")
	}

	words := doc.WordCount()
	h2 := len(doc.Headings[2])
	wanted := int(math.Max(1, math.Floor(float64(words)/300)))
	if h2 >= wanted {
		score += 40
	} else {
		score += 40 * float64(h2) / float64(wanted)
		recs = append(recs, fmt.Sprintf("Break the content up with subheadings, about one H2 per 300 words (%d expected)", wanted))
	}

	ordered := headingsOrdered(doc.HeadingLevels)
	if ordered {
		score += 15
	} else {
		recs = append(recs, "Do not skip heading levels")
	}

	if averageParagraphWords(doc) <= 150 {
		score += 15
	} else {
		recs = append(recs, "Shorten long paragraphs")
	}

	message := "Page layout is well structured"
	if len(recs) > 0 {
		message = "Page layout can be improved"
	}
	return Result{
		Score:          score,
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"h1_count":         len(doc.Headings[1]),
			"h2_count":         h2,
			"headings_ordered": ordered,
		},
	}
}

func evaluateAccessibility(doc *Document, _ Criterion) Result {
	score := 0.0
	var recs []string

	if n := len(doc.Images); n == 0 {
		score += 40
	} else {
		withAlt := 0
		for _, img := range doc.Images {
			if img.HasAlt {
				withAlt++
			}
		}
		score += 40 * float64(withAlt) / float64(n)
		if withAlt < n {
			recs = append(recs, "Describe every image with alt text")
		}
	}

	if len(doc.Links) == 0 {
		score += 30
	} else {
		descriptive := 0
		for _, l := range doc.Links {
			if !vagueLinkText[strings.ToLower(l.Text)] {
				descriptive++
			}
		}
		score += 30 * float64(descriptive) / float64(len(doc.Links))
		if descriptive < len(doc.Links) {
			recs = append(recs, "Replace vague link text such as \"click here\" with descriptive text")
		}
	}

	if headingsOrdered(doc.HeadingLevels) {
		score += 30
	} else {
		recs = append(recs, "Keep heading levels in order for screen readers")
	}

	message := "Content is accessible"
	if len(recs) > 0 {
		message = "Accessibility issues found"
	}
	return Result{Score: score, Message: message, Recommendation: strings.Join(recs, ". ")}
}

func evaluateEngagement(doc *Document, _ Criterion) Result {
	e := doc.Item.Engagement
	if e.AvgTimeOnPage == 0 && e.BounceRate == 0 && e.ScrollDepth == 0 {
		return Result{
			Score:          50,
			Message:        "No engagement data available",
			Recommendation: "Connect analytics to measure engagement",
		}
	}

	bounce := clampUnit(e.BounceRate)
	scroll := clampUnit(e.ScrollDepth)
	score := math.Min(40, e.AvgTimeOnPage/180*40) + (1-bounce)*30 + scroll*30

	var recs []string
	if e.AvgTimeOnPage < 60 {
		recs = append(recs, "Increase time on page with richer media and clearer structure")
	}
	if bounce > 0.7 {
		recs = append(recs, "Reduce bounce rate with stronger internal links and calls to action")
	}
	if scroll < 0.5 {
		recs = append(recs, "Move key information higher on the page")
	}

	return Result{
		Score:          score,
		Message:        fmt.Sprintf("Visitors stay %.0fs on average", e.AvgTimeOnPage),
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"avg_time_on_page": e.AvgTimeOnPage,
			"bounce_rate":      bounce,
			"scroll_depth":     scroll,
		},
	}
}

func evaluateConversion(doc *Document, _ Criterion) Result {
	score := 0.0
	var recs []string
	switch {
	case doc.CTAs >= 2:
		score += 60
	case doc.CTAs == 1:
		score += 50
	default:
		recs = append(recs, "Add a clear call to action")
	}

	rate := clampUnit(doc.Item.Engagement.ConversionRate)
	score += math.Min(40, rate*100*20)
	if rate < 0.02 {
		recs = append(recs, "Test CTA placement and copy to lift conversions")
	}

	return Result{
		Score:          score,
		Message:        fmt.Sprintf("Page has %d call(s) to action", doc.CTAs),
		Recommendation: strings.Join(recs, ". "),
		Details:        map[string]interface{}{"ctas": doc.CTAs, "conversion_rate": rate},
	}
}

// headingsOrdered reports whether no heading jumps more than one level deeper
// than the previous one.
func headingsOrdered(levels []int) bool {
	prev := 0
	for _, l := range levels {
		if prev > 0 && l > prev+1 {
			return false
		}
		prev = l
	}
	return true
}

func averageParagraphWords(doc *Document) float64 {
	if len(doc.Paragraphs) == 0 {
		return 0
	}
	total := 0
	for _, p := range doc.Paragraphs {
		total += len(wordPattern.FindAllString(p, -1))
	}
	return float64(total) / float64(len(doc.Paragraphs))
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
