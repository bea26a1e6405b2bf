package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	powerWords  = []string{"ultimate", "complete", "essential", "proven", "secret", "amazing", "incredible", "powerful"}
	digitsRegex = regexp.MustCompile(`\d+`)
)

func builtinEvaluators() []Evaluator {
	return []Evaluator{
		NewEvaluatorFunc("title_optimization", evaluateTitle),
		NewEvaluatorFunc("meta_description", evaluateMetaDescription),
		NewEvaluatorFunc("content_length", evaluateContentLength),
		NewEvaluatorFunc("keyword_optimization", evaluateKeywordOptimization),
		NewEvaluatorFunc("readability", evaluateReadability),
		NewEvaluatorFunc("internal_linking", evaluateInternalLinking),
		NewEvaluatorFunc("image_optimization", evaluateImageOptimization),

		NewEvaluatorFunc("page_speed", evaluatePageSpeed),
		NewEvaluatorFunc("mobile_optimization", evaluateMobileOptimization),
		NewEvaluatorFunc("crawlability", evaluateCrawlability),
		NewEvaluatorFunc("security", evaluateSecurity),
		NewEvaluatorFunc("schema_markup", evaluateSchemaMarkup),
		NewEvaluatorFunc("canonical_urls", evaluateCanonical),

		NewEvaluatorFunc("open_graph_tags", evaluateOpenGraph),
		NewEvaluatorFunc("twitter_cards", evaluateTwitterCards),
		NewEvaluatorFunc("social_sharing", evaluateSocialSharing),
		NewEvaluatorFunc("content_shareability", evaluateShareability),

		NewEvaluatorFunc("page_layout", evaluatePageLayout),
		NewEvaluatorFunc("content_accessibility", evaluateAccessibility),
		NewEvaluatorFunc("engagement_metrics", evaluateEngagement),
		NewEvaluatorFunc("conversion_optimization", evaluateConversion),
	}
}

// TitleEngagement scores how compelling a title reads, 50..100.
func TitleEngagement(title string) float64 {
	score := 50.0
	lower := strings.ToLower(title)

	for _, w := range powerWords {
		if strings.Contains(lower, w) {
			score += 10
			break
		}
	}
	if digitsRegex.MatchString(title) {
		score += 15
	}
	if strings.Contains(title, "?") {
		score += 10
	}
	if strings.Contains(lower, "how to") {
		score += 12
	}
	return math.Min(100, score)
}

// lengthScore awards full points inside [min, max], proportional points below
// and a bounded penalty above.
func lengthScore(length, min, max, points float64) float64 {
	switch {
	case length >= min && length <= max:
		return points
	case length < min:
		if min <= 0 {
			return points
		}
		return math.Max(0, points*length/min)
	default:
		penalty := math.Min(points/2, (length-max)*0.5)
		return math.Max(points/2, points-penalty)
	}
}

func evaluateTitle(doc *Document, c Criterion) Result {
	title := strings.TrimSpace(doc.Item.Title)
	length := float64(utf8.RuneCountInString(title))
	min, max := c.Param("min_length", 30), c.Param("max_length", 60)

	var issues, recs []string
	score := lengthScore(length, min, max, 40)
	switch {
	case length < min:
		issues = append(issues, fmt.Sprintf("Title is too short (%d characters)", int(length)))
		recs = append(recs, fmt.Sprintf("Expand title to %d-%d characters for optimal SEO impact", int(min), int(max)))
	case length > max:
		issues = append(issues, fmt.Sprintf("Title is too long (%d characters)", int(length)))
		recs = append(recs, fmt.Sprintf("Shorten title to under %d characters to avoid truncation in search results", int(max)))
	}

	keyword := strings.TrimSpace(doc.Item.FocusKeyword)
	keywordPresent := false
	if keyword != "" {
		lowerTitle := strings.ToLower(title)
		pos := strings.Index(lowerTitle, strings.ToLower(keyword))
		switch {
		case pos == 0:
			score += 30
			keywordPresent = true
		case pos > 0 && utf8.RuneCountInString(lowerTitle[:pos]) <= 10:
			score += 25
			keywordPresent = true
		case pos > 0:
			score += 20
			keywordPresent = true
		default:
			issues = append(issues, "Focus keyword not found in title")
			recs = append(recs, "Include your focus keyword in the title, preferably near the beginning")
		}
	} else {
		score += 15
		recs = append(recs, "Set a focus keyword and include it in your title")
	}

	unique := doc.Item.DuplicateTitles == 0
	if unique {
		score += 20
	} else {
		issues = append(issues, "Title may not be unique across your site")
		recs = append(recs, "Create a unique, distinctive title to avoid competition with your own content")
	}

	engagement := TitleEngagement(title)
	score += engagement / 100 * 10
	if engagement < 50 {
		recs = append(recs, "Consider making your title more engaging with power words, numbers, or emotional triggers")
	}

	message := "Title is well optimized"
	if len(issues) > 0 {
		message = strings.Join(issues, ". ")
	}
	return Result{
		Score:          math.Round(score),
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"title_length":          int(length),
			"focus_keyword_present": keywordPresent,
			"is_unique":             unique,
			"engagement_score":      engagement,
		},
	}
}

func evaluateMetaDescription(doc *Document, c Criterion) Result {
	desc := strings.TrimSpace(doc.Item.MetaDescription)
	if desc == "" {
		desc = doc.Meta["description"]
	}
	if desc == "" {
		return Result{
			Score:          0,
			Message:        "Meta description is missing",
			Recommendation: "Write a meta description that summarizes the page and includes the focus keyword",
		}
	}

	length := float64(utf8.RuneCountInString(desc))
	min, max := c.Param("min_length", 150), c.Param("max_length", 160)

	var issues, recs []string
	score := lengthScore(length, min, max, 60)
	switch {
	case length < min:
		issues = append(issues, fmt.Sprintf("Meta description is too short (%d characters)", int(length)))
		recs = append(recs, fmt.Sprintf("Expand the meta description to %d-%d characters", int(min), int(max)))
	case length > max:
		issues = append(issues, fmt.Sprintf("Meta description is too long (%d characters)", int(length)))
		recs = append(recs, fmt.Sprintf("Trim the meta description below %d characters to avoid truncation", int(max)))
	}

	keyword := strings.TrimSpace(doc.Item.FocusKeyword)
	switch {
	case keyword == "":
		score += 12
	case strings.Contains(strings.ToLower(desc), strings.ToLower(keyword)):
		score += 25
	default:
		issues = append(issues, "Focus keyword missing from meta description")
		recs = append(recs, "Mention the focus keyword in the meta description")
	}

	if !strings.EqualFold(desc, strings.TrimSpace(doc.Item.Title)) {
		score += 15
	} else {
		issues = append(issues, "Meta description duplicates the title")
		recs = append(recs, "Write a meta description that adds information beyond the title")
	}

	message := "Meta description is well optimized"
	if len(issues) > 0 {
		message = strings.Join(issues, ". ")
	}
	return Result{
		Score:          score,
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details:        map[string]interface{}{"length": int(length)},
	}
}

func evaluateContentLength(doc *Document, c Criterion) Result {
	words := float64(doc.WordCount())
	min, optimal := c.Param("min_words", 300), c.Param("optimal_words", 1500)
	details := map[string]interface{}{"word_count": int(words)}

	switch {
	case words >= optimal:
		return Result{Score: 100, Message: fmt.Sprintf("Content is comprehensive (%d words)", int(words)), Details: details}
	case words >= min:
		score := 70 + 30*(words-min)/math.Max(1, optimal-min)
		return Result{
			Score:          score,
			Message:        fmt.Sprintf("Content length is adequate (%d words)", int(words)),
			Recommendation: fmt.Sprintf("Expand content towards %d words to cover the topic in depth", int(optimal)),
			Details:        details,
		}
	default:
		return Result{
			Score:          70 * words / math.Max(1, min),
			Message:        fmt.Sprintf("Content is too short (%d words)", int(words)),
			Recommendation: fmt.Sprintf("Add content to reach at least %d words", int(min)),
			Details:        details,
		}
	}
}

func evaluateKeywordOptimization(doc *Document, c Criterion) Result {
	keyword := strings.TrimSpace(doc.Item.FocusKeyword)
	if keyword == "" {
		return Result{
			Score:          50,
			Message:        "No focus keyword set",
			Recommendation: "Set a focus keyword for this content",
		}
	}

	words := doc.WordCount()
	if words == 0 {
		return Result{Score: 0, Message: "No content to analyze", Recommendation: "Add body content that uses the focus keyword"}
	}

	keywordWords := len(wordPattern.FindAllString(keyword, -1))
	occurrences := doc.PhraseOccurrences(keyword)
	density := float64(occurrences*keywordWords) / float64(words) * 100
	minD, maxD := c.Param("min_density", 0.5), c.Param("max_density", 2.5)

	var issues, recs []string
	var score float64
	switch {
	case density >= minD && density <= maxD:
		score += 40
	case density < minD:
		score += 40 * density / minD
		issues = append(issues, fmt.Sprintf("Keyword density is low (%.2f%%)", density))
		recs = append(recs, fmt.Sprintf("Use the focus keyword more often, aiming for %.1f-%.1f%% density", minD, maxD))
	default:
		score += math.Max(0, 40-(density-maxD)*20)
		issues = append(issues, fmt.Sprintf("Keyword density is high (%.2f%%)", density))
		recs = append(recs, "Reduce keyword repetition to avoid over-optimization")
	}

	lowerKeyword := strings.ToLower(keyword)
	if len(doc.Paragraphs) > 0 && strings.Contains(strings.ToLower(doc.Paragraphs[0]), lowerKeyword) {
		score += 20
	} else {
		issues = append(issues, "Focus keyword missing from the introduction")
		recs = append(recs, "Mention the focus keyword in the first paragraph")
	}

	inHeading := false
	for level := 2; level <= 3 && !inHeading; level++ {
		for _, h := range doc.Headings[level] {
			if strings.Contains(strings.ToLower(h), lowerKeyword) {
				inHeading = true
				break
			}
		}
	}
	if inHeading {
		score += 20
	} else {
		recs = append(recs, "Use the focus keyword in at least one subheading")
	}

	slug := strings.ToLower(doc.Item.Slug + " " + doc.Item.URL)
	if strings.Contains(slug, strings.ReplaceAll(lowerKeyword, " ", "-")) {
		score += 10
	} else {
		recs = append(recs, "Include the focus keyword in the URL slug")
	}

	if strings.Contains(strings.ToLower(doc.Item.MetaDescription), lowerKeyword) {
		score += 10
	}

	message := "Keyword usage is well balanced"
	if len(issues) > 0 {
		message = strings.Join(issues, ". ")
	}
	return Result{
		Score:          score,
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"density":     math.Round(density*100) / 100,
			"occurrences": occurrences,
			"in_heading":  inHeading,
		},
	}
}

func evaluateReadability(doc *Document, c Criterion) Result {
	if doc.WordCount() == 0 || len(doc.Sentences) == 0 {
		return Result{Score: 0, Message: "No readable content found", Recommendation: "Add body content"}
	}

	target := c.Param("flesch_target", 60)
	maxSentence := c.Param("max_sentence_length", 20)
	maxParagraph := c.Param("max_paragraph_length", 150)

	flesch := doc.FleschReadingEase()
	avgSentence := float64(doc.WordCount()) / float64(len(doc.Sentences))
	avgParagraph := 0.0
	if len(doc.Paragraphs) > 0 {
		total := 0
		for _, p := range doc.Paragraphs {
			total += len(wordPattern.FindAllString(p, -1))
		}
		avgParagraph = float64(total) / float64(len(doc.Paragraphs))
	}

	var issues, recs []string
	score := 0.0
	if flesch >= target {
		score += 50
	} else {
		score += 50 * math.Max(0, flesch) / target
		issues = append(issues, fmt.Sprintf("Reading ease is low (%.0f)", flesch))
		recs = append(recs, "Use shorter words and simpler sentences")
	}

	if avgSentence <= maxSentence {
		score += 25
	} else {
		score += math.Max(0, 25-(avgSentence-maxSentence)*2.5)
		issues = append(issues, fmt.Sprintf("Sentences average %.0f words", avgSentence))
		recs = append(recs, fmt.Sprintf("Keep sentences under %d words", int(maxSentence)))
	}

	if avgParagraph <= maxParagraph {
		score += 25
	} else {
		score += math.Max(0, 25-(avgParagraph-maxParagraph)/10)
		issues = append(issues, fmt.Sprintf("Paragraphs average %.0f words", avgParagraph))
		recs = append(recs, "Break long paragraphs into smaller ones")
	}

	message := "Content is easy to read"
	if len(issues) > 0 {
		message = strings.Join(issues, ". ")
	}
	return Result{
		Score:          score,
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"flesch_reading_ease":  math.Round(flesch*10) / 10,
			"avg_sentence_length":  math.Round(avgSentence*10) / 10,
			"avg_paragraph_length": math.Round(avgParagraph*10) / 10,
		},
	}
}

func evaluateInternalLinking(doc *Document, c Criterion) Result {
	internal := float64(doc.InternalLinks())
	min, optimal := c.Param("min_links", 2), c.Param("optimal_links", 5)
	details := map[string]interface{}{"internal_links": int(internal), "total_links": len(doc.Links)}

	switch {
	case internal >= optimal:
		return Result{Score: 100, Message: fmt.Sprintf("Content has %d internal links", int(internal)), Details: details}
	case internal >= min:
		return Result{
			Score:          70 + 30*(internal-min)/math.Max(1, optimal-min),
			Message:        fmt.Sprintf("Content has %d internal links", int(internal)),
			Recommendation: fmt.Sprintf("Add internal links to related content, aiming for %d", int(optimal)),
			Details:        details,
		}
	default:
		return Result{
			Score:          70 * internal / math.Max(1, min),
			Message:        fmt.Sprintf("Too few internal links (%d)", int(internal)),
			Recommendation: fmt.Sprintf("Add at least %d internal links to related content", int(min)),
			Details:        details,
		}
	}
}

func evaluateImageOptimization(doc *Document, _ Criterion) Result {
	if len(doc.Images) == 0 {
		return Result{
			Score:          60,
			Message:        "No images found",
			Recommendation: "Add relevant images with descriptive alt text",
		}
	}

	n := float64(len(doc.Images))
	var withAlt, withDims, lazy float64
	for i, img := range doc.Images {
		if img.HasAlt {
			withAlt++
		}
		if img.HasDimensions {
			withDims++
		}
		// the first image is usually above the fold
		if img.Lazy || i == 0 {
			lazy++
		}
	}

	score := 60*withAlt/n + 20*withDims/n + 20*lazy/n

	var recs []string
	if withAlt < n {
		recs = append(recs, fmt.Sprintf("Add alt text to %d image(s)", int(n-withAlt)))
	}
	if withDims < n {
		recs = append(recs, "Set width and height on images to prevent layout shift")
	}
	if lazy < n {
		recs = append(recs, "Lazy-load images below the fold")
	}

	message := "Images are well optimized"
	if len(recs) > 0 {
		message = fmt.Sprintf("%d of %d images fully optimized", int(math.Min(withAlt, withDims)), int(n))
	}
	return Result{
		Score:          score,
		Message:        message,
		Recommendation: strings.Join(recs, ". "),
		Details: map[string]interface{}{
			"images":          int(n),
			"with_alt":        int(withAlt),
			"with_dimensions": int(withDims),
		},
	}
}
