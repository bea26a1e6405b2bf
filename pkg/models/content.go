package models

import (
	"strings"
	"time"
)

// ContentItem is a fully resolved snapshot of a piece of content. Evaluators
// read only from this structure; providers must populate every field they
// intend to be scored before handing the item to the scoring engine.
type ContentItem struct {
	ID              string    `json:"id" yaml:"id"`
	URL             string    `json:"url" yaml:"url"`
	Title           string    `json:"title" yaml:"title"`
	Slug            string    `json:"slug,omitempty" yaml:"slug,omitempty"`
	Type            string    `json:"type,omitempty" yaml:"type,omitempty"`
	Status          string    `json:"status" yaml:"status"`
	Body            string    `json:"body" yaml:"body"`
	Head            string    `json:"head,omitempty" yaml:"head,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty" yaml:"meta_description,omitempty"`
	FocusKeyword    string    `json:"focus_keyword,omitempty" yaml:"focus_keyword,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	ModifiedAt      time.Time `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`

	// DuplicateTitles is the number of other published items sharing this title.
	DuplicateTitles int `json:"duplicate_titles" yaml:"duplicate_titles"`

	Technical  TechnicalSignals  `json:"technical" yaml:"technical"`
	Engagement EngagementSignals `json:"engagement" yaml:"engagement"`
	Social     SocialSignals     `json:"social" yaml:"social"`
}

// TechnicalSignals carries crawl and performance measurements for the item's URL.
type TechnicalSignals struct {
	LoadTimeMs      float64 `json:"load_time_ms" yaml:"load_time_ms"`
	LCPMs           float64 `json:"lcp_ms" yaml:"lcp_ms"`
	CLS             float64 `json:"cls" yaml:"cls"`
	INPMs           float64 `json:"inp_ms" yaml:"inp_ms"`
	HTTPS           bool    `json:"https" yaml:"https"`
	MixedContent    bool    `json:"mixed_content" yaml:"mixed_content"`
	MobileFriendly  bool    `json:"mobile_friendly" yaml:"mobile_friendly"`
	StatusCode      int     `json:"status_code" yaml:"status_code"`
	Noindex         bool    `json:"noindex" yaml:"noindex"`
	BlockedByRobots bool    `json:"blocked_by_robots" yaml:"blocked_by_robots"`
	InSitemap       bool    `json:"in_sitemap" yaml:"in_sitemap"`
}

// EngagementSignals carries aggregated visitor behaviour.
type EngagementSignals struct {
	AvgTimeOnPage   float64 `json:"avg_time_on_page" yaml:"avg_time_on_page"` // seconds
	BounceRate      float64 `json:"bounce_rate" yaml:"bounce_rate"`           // 0..1
	ScrollDepth     float64 `json:"scroll_depth" yaml:"scroll_depth"`         // 0..1
	PagesPerSession float64 `json:"pages_per_session" yaml:"pages_per_session"`
	ConversionRate  float64 `json:"conversion_rate" yaml:"conversion_rate"` // 0..1
}

// SocialSignals carries share activity collected for the item.
type SocialSignals struct {
	Shares       int  `json:"shares" yaml:"shares"`
	ShareButtons bool `json:"share_buttons" yaml:"share_buttons"`
}

// IsPublished reports whether the item is in a publicly visible state.
func (c *ContentItem) IsPublished() bool {
	if c == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(c.Status)) {
	case "publish", "published", "live":
		return true
	}
	return false
}

// Host returns the host part of the item's URL, without scheme or path.
func (c *ContentItem) Host() string {
	u := c.URL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}
