package scoring

import (
	"fmt"
	"math"
	"strings"
)

var openGraphTags = []string{"og:title", "og:description", "og:image", "og:url", "og:type"}

func evaluateOpenGraph(doc *Document, _ Criterion) Result {
	return tagCoverage(doc, openGraphTags, 20, "Open Graph")
}

func evaluateTwitterCards(doc *Document, _ Criterion) Result {
	score := 0.0
	var missing []string
	if doc.Meta["twitter:card"] != "" {
		score += 40
	} else {
		missing = append(missing, "twitter:card")
	}
	for _, tag := range []string{"twitter:title", "twitter:description", "twitter:image"} {
		if doc.Meta[tag] != "" {
			score += 20
		} else {
			missing = append(missing, tag)
		}
	}
	return coverageResult(score, missing, "Twitter Card")
}

func tagCoverage(doc *Document, tags []string, each float64, label string) Result {
	score := 0.0
	var missing []string
	for _, tag := range tags {
		if doc.Meta[tag] != "" {
			score += each
		} else {
			missing = append(missing, tag)
		}
	}
	return coverageResult(score, missing, label)
}

func coverageResult(score float64, missing []string, label string) Result {
	if len(missing) == 0 {
		return Result{Score: score, Message: fmt.Sprintf("%s tags are complete", label)}
	}
	return Result{
		Score:          score,
		Message:        fmt.Sprintf("Missing %s tags: %s", label, strings.Join(missing, ", ")),
		Recommendation: fmt.Sprintf("Add %s", strings.Join(missing, ", ")),
		Details:        map[string]interface{}{"missing": missing},
	}
}

func evaluateSocialSharing(doc *Document, _ Criterion) Result {
	social := doc.Item.Social
	score := 0.0
	var recs []string
	if social.ShareButtons {
		score += 50
	} else {
		recs = append(recs, "Add social sharing buttons")
	}

	shares := math.Max(0, float64(social.Shares))
	score += math.Min(50, math.Log10(shares+1)*20)
	if social.Shares < 10 {
		recs = append(recs, "Promote the content on social channels")
	}

	return Result{
		Score:          score,
		Message:        fmt.Sprintf("Content has %d shares", social.Shares),
		Recommendation: strings.Join(recs, ". "),
		Details:        map[string]interface{}{"shares": social.Shares, "share_buttons": social.ShareButtons},
	}
}

func evaluateShareability(doc *Document, _ Criterion) Result {
	score := TitleEngagement(doc.Item.Title) * 0.4
	var recs []string

	if len(doc.Images) > 0 || doc.Meta["og:image"] != "" {
		score += 30
	} else {
		recs = append(recs, "Add an image that previews well when shared")
	}
	if doc.WordCount() >= 600 {
		score += 20
	} else {
		recs = append(recs, "Longer, in-depth content is shared more often")
	}
	if doc.Lists > 0 || doc.Quotes > 0 {
		score += 10
	} else {
		recs = append(recs, "Use lists or pull quotes to create shareable snippets")
	}

	return Result{
		Score:          score,
		Message:        "Shareability assessed from title, media and structure",
		Recommendation: strings.Join(recs, ". "),
	}
}
