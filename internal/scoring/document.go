package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}']+`)
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)
	vowelGroups     = regexp.MustCompile(`[aeiouy]+`)
)

const blockSelector = "p, li:not(:has(p)), blockquote:not(:has(p)), td:not(:has(p)), h1, h2, h3, h4, h5, h6"

// Link is an anchor found in the body.
type Link struct {
	Href     string
	Text     string
	Rel      string
	Internal bool
}

// Image is an img element found in the body.
type Image struct {
	Src           string
	Alt           string
	HasAlt        bool
	HasDimensions bool
	Lazy          bool
}

// Document is a content item together with the structure parsed out of its
// HTML. It is built once per scoring run and shared read-only by evaluators.
type Document struct {
	Item *models.ContentItem

	Text       string
	Words      []string
	Sentences  []string
	Paragraphs []string
	Headings   map[int][]string
	// HeadingLevels lists heading levels in document order.
	HeadingLevels []int
	Links         []Link
	Images        []Image
	Meta          map[string]string
	Canonicals    []string
	JSONLD        []string
	HasViewport   bool
	RobotsNoindex bool
	CTAs          int
	Lists         int
	Quotes        int
}

// NewDocument parses the item's head and body HTML.
func NewDocument(item *models.ContentItem) (*Document, error) {
	if item == nil {
		return nil, errors.ErrInvalidContent
	}

	html := "<html><head>" + item.Head + "</head><body>" + item.Body + "</body></html>"
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat, "failed to parse content HTML")
	}

	doc := &Document{
		Item:     item,
		Headings: make(map[int][]string),
		Meta:     make(map[string]string),
	}

	doc.extractHead(dom)

	dom.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			doc.JSONLD = append(doc.JSONLD, text)
		}
	})
	dom.Find("script, style, noscript").Remove()

	body := dom.Find("body")
	doc.extractText(body)
	doc.extractLinks(body)
	doc.extractImages(body)

	doc.CTAs = body.Find(`button, input[type="submit"], form, a.button, a.btn, a[class*="cta"], a[class*="btn"]`).Length()
	doc.Lists = body.Find("ul, ol").Length()
	doc.Quotes = body.Find("blockquote").Length()

	return doc, nil
}

func (d *Document) extractHead(dom *goquery.Document) {
	dom.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(attr(s, "property")))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(attr(s, "name")))
		}
		if key == "" {
			return
		}
		content := strings.TrimSpace(attr(s, "content"))
		if _, exists := d.Meta[key]; !exists {
			d.Meta[key] = content
		}
		switch key {
		case "viewport":
			d.HasViewport = content != ""
		case "robots":
			if strings.Contains(strings.ToLower(content), "noindex") {
				d.RobotsNoindex = true
			}
		}
	})

	dom.Find("link").Each(func(_ int, s *goquery.Selection) {
		for _, rel := range strings.Fields(strings.ToLower(attr(s, "rel"))) {
			if rel == "canonical" {
				d.Canonicals = append(d.Canonicals, strings.TrimSpace(attr(s, "href")))
			}
		}
	})
}

func (d *Document) extractText(body *goquery.Selection) {
	blocks := make([]string, 0)
	body.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		blocks = append(blocks, text)

		if level := headingLevel(goquery.NodeName(s)); level > 0 {
			d.Headings[level] = append(d.Headings[level], text)
			d.HeadingLevels = append(d.HeadingLevels, level)
			return
		}
		if goquery.NodeName(s) == "p" {
			d.Paragraphs = append(d.Paragraphs, text)
		}
		for _, sentence := range sentencePattern.FindAllString(text, -1) {
			if len(wordPattern.FindAllString(sentence, -1)) > 0 {
				d.Sentences = append(d.Sentences, strings.TrimSpace(sentence))
			}
		}
	})

	if len(blocks) == 0 {
		// plain-text bodies without block markup
		text := collapseSpace(body.Text())
		if text != "" {
			blocks = append(blocks, text)
			d.Paragraphs = append(d.Paragraphs, text)
			for _, sentence := range sentencePattern.FindAllString(text, -1) {
				if len(wordPattern.FindAllString(sentence, -1)) > 0 {
					d.Sentences = append(d.Sentences, strings.TrimSpace(sentence))
				}
			}
		}
	}

	d.Text = strings.Join(blocks, "\n")
	d.Words = wordPattern.FindAllString(d.Text, -1)
}

func (d *Document) extractLinks(body *goquery.Selection) {
	host := d.Item.Host()
	body.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(attr(s, "href"))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
			return
		}
		d.Links = append(d.Links, Link{
			Href:     href,
			Text:     collapseSpace(s.Text()),
			Rel:      strings.ToLower(attr(s, "rel")),
			Internal: isInternal(lower, host),
		})
	})
}

func (d *Document) extractImages(body *goquery.Selection) {
	body.Find("img").Each(func(_ int, s *goquery.Selection) {
		alt, hasAlt := s.Attr("alt")
		_, hasWidth := s.Attr("width")
		_, hasHeight := s.Attr("height")
		d.Images = append(d.Images, Image{
			Src:           attr(s, "src"),
			Alt:           strings.TrimSpace(alt),
			HasAlt:        hasAlt && strings.TrimSpace(alt) != "",
			HasDimensions: hasWidth && hasHeight,
			Lazy:          strings.EqualFold(attr(s, "loading"), "lazy"),
		})
	})
}

// WordCount returns the number of words in the body text.
func (d *Document) WordCount() int {
	return len(d.Words)
}

// InternalLinks counts links pointing at the item's own host.
func (d *Document) InternalLinks() int {
	n := 0
	for _, l := range d.Links {
		if l.Internal {
			n++
		}
	}
	return n
}

// PhraseOccurrences counts case-insensitive occurrences of phrase in the body words.
func (d *Document) PhraseOccurrences(phrase string) int {
	return countPhrase(d.Words, wordPattern.FindAllString(phrase, -1))
}

// Syllables estimates the syllable count of the body text.
func (d *Document) Syllables() int {
	total := 0
	for _, w := range d.Words {
		total += syllables(w)
	}
	return total
}

// FleschReadingEase returns the Flesch reading-ease score of the body text.
func (d *Document) FleschReadingEase() float64 {
	words := float64(len(d.Words))
	sentences := float64(len(d.Sentences))
	if words == 0 || sentences == 0 {
		return 0
	}
	return 206.835 - 1.015*(words/sentences) - 84.6*(float64(d.Syllables())/words)
}

func countPhrase(words, phrase []string) int {
	if len(phrase) == 0 || len(words) < len(phrase) {
		return 0
	}
	count := 0
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if !strings.EqualFold(words[i+j], p) {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

func syllables(word string) int {
	w := strings.ToLower(word)
	if utf8.RuneCountInString(w) <= 3 {
		return 1
	}
	n := len(vowelGroups.FindAllString(w, -1))
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && n > 1 {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

func isInternal(href, host string) bool {
	if strings.HasPrefix(href, "//") {
		return host != "" && strings.HasPrefix(href[2:], host)
	}
	i := strings.Index(href, "://")
	if i < 0 {
		return true
	}
	rest := href[i+3:]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	return host != "" && (rest == host || rest == "www."+host || "www."+rest == host)
}

func headingLevel(node string) int {
	if len(node) == 2 && node[0] == 'h' && node[1] >= '1' && node[1] <= '6' {
		return int(node[1] - '0')
	}
	return 0
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return v
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
