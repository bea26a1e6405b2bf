package main

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/inferloop/contentscore/pkg/models"
)

// Config controls how much sample data is generated
type Config struct {
	Items     int           `json:"items" yaml:"items"`
	Days      int           `json:"days" yaml:"days"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	SpikeRate float64       `json:"spike_rate" yaml:"spike_rate"`
	Seed      int64         `json:"seed" yaml:"seed"`
	Profiles  []Profile     `json:"profiles" yaml:"profiles"`
}

// Profile describes the shape of one generated metric. Trend, Weekly and
// Noise are relative to Base: change per day, weekly amplitude and gaussian
// standard deviation.
type Profile struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Unit      string  `json:"unit" yaml:"unit"`
	Base      float64 `json:"base" yaml:"base"`
	Trend     float64 `json:"trend" yaml:"trend"`
	Weekly    float64 `json:"weekly" yaml:"weekly"`
	Noise     float64 `json:"noise" yaml:"noise"`
	SpikeSize float64 `json:"spike_size" yaml:"spike_size"`
	Min       float64 `json:"min" yaml:"min"`
	Max       float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Generator produces content items and their metric history
type Generator struct {
	config *Config
	rand   *rand.Rand
}

func NewGenerator(config *Config) *Generator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		config: config,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Item builds the index-th content item. Quality cycles through strong,
// average and weak drafts so that scores spread across grades.
func (g *Generator) Item(index int, now time.Time) *models.ContentItem {
	topic := topics[index%len(topics)]
	id := fmt.Sprintf("%s-%d", slug(topic.keyword), index+1)
	quality := index % 3

	item := &models.ContentItem{
		ID:           id,
		URL:          "https://example.com/blog/" + id,
		Title:        topic.title,
		Slug:         id,
		Type:         "post",
		Status:       "published",
		FocusKeyword: topic.keyword,
		PublishedAt:  now.AddDate(0, 0, -g.config.Days-30),
		ModifiedAt:   now.AddDate(0, 0, -g.rand.Intn(30)),
		Technical: models.TechnicalSignals{
			HTTPS:          true,
			MobileFriendly: quality < 2,
			StatusCode:     200,
			InSitemap:      quality < 2,
			LoadTimeMs:     1200 + float64(quality)*1500 + g.rand.Float64()*400,
			LCPMs:          1800 + float64(quality)*1200,
			CLS:            0.05 + float64(quality)*0.1,
			INPMs:          120 + float64(quality)*150,
		},
		Engagement: models.EngagementSignals{
			AvgTimeOnPage:   240 - float64(quality)*80,
			BounceRate:      0.35 + float64(quality)*0.15,
			ScrollDepth:     0.7 - float64(quality)*0.2,
			PagesPerSession: 2.4 - float64(quality)*0.6,
			ConversionRate:  0.03 - float64(quality)*0.01,
		},
		Social: models.SocialSignals{
			Shares:       g.rand.Intn(200) / (quality + 1),
			ShareButtons: quality == 0,
		},
	}

	switch quality {
	case 0:
		item.MetaDescription = fmt.Sprintf("Learn %s step by step: %s, with examples and a checklist you can apply today.", topic.keyword, topic.summary)
		item.Body = body(topic, 6, true)
	case 1:
		item.MetaDescription = fmt.Sprintf("A short guide to %s.", topic.keyword)
		item.Body = body(topic, 3, true)
	default:
		item.Body = body(topic, 1, false)
	}
	return item
}

// Series builds the daily history of one metric, ending before now
func (g *Generator) Series(p Profile, now time.Time) *models.MetricSeries {
	interval := g.config.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	points := int(time.Duration(g.config.Days) * 24 * time.Hour / interval)
	start := now.Add(-time.Duration(points) * interval).Truncate(interval)

	values := make([]float64, points)
	for i := range values {
		days := float64(i) * interval.Hours() / 24

		value := p.Base
		value += p.Base * p.Trend * days
		value += p.Base * p.Weekly * math.Sin(2*math.Pi*days/7)
		value += p.Base * p.Noise * g.rand.NormFloat64()
		if p.SpikeSize > 0 && g.rand.Float64() < g.config.SpikeRate {
			value *= p.SpikeSize
		}
		values[i] = clamp(value, p.Min, p.Max)
	}

	series := models.NewMetricSeries(p.Metric, start, interval, values)
	series.Unit = p.Unit
	return series
}

// TrendFor varies a profile's trend per item so that some items improve
// and some decline
func (g *Generator) TrendFor(p Profile, index int) Profile {
	switch index % 4 {
	case 1:
		p.Trend = -p.Trend
	case 3:
		p.Trend = 0
	}
	return p
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if max > min && v > max {
		return max
	}
	return v
}

type topic struct {
	keyword string
	title   string
	summary string
}

var topics = []topic{
	{"content audit", "How to Run a Content Audit That Actually Improves Rankings", "inventory, scoring and pruning"},
	{"keyword research", "Keyword Research for Small Teams: A Practical Workflow", "finding intent and grouping terms"},
	{"internal linking", "Internal Linking Strategy: Build Topic Clusters That Rank", "hubs, anchors and crawl depth"},
	{"core web vitals", "Core Web Vitals Explained for Content Editors", "LCP, CLS and INP in plain words"},
	{"content refresh", "When and How to Refresh Old Blog Posts", "signals that a post needs an update"},
}

func body(t topic, sections int, links bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", t.title)
	fmt.Fprintf(&b, "<p>This guide covers %s: %s. Teams that treat %s as a routine see steadier organic growth.</p>\n",
		t.keyword, t.summary, t.keyword)
	for i := 1; i <= sections; i++ {
		fmt.Fprintf(&b, "<h2>Step %d of %s</h2>\n", i, t.keyword)
		b.WriteString("<p>Start with the pages that already earn traffic. Compare each one with the queries it ranks for, ")
		b.WriteString("note the gaps, and write down one concrete change. Keep sentences short and lead with the answer.</p>\n")
		b.WriteString("<ul><li>Check the title and description</li><li>Update outdated facts</li><li>Add a clear next step</li></ul>\n")
		if links {
			fmt.Fprintf(&b, "<p>See also <a href=\"/blog/%s-guide-%d\">our related guide</a>.</p>\n", slug(t.keyword), i)
		}
		if i%2 == 0 {
			fmt.Fprintf(&b, "<img src=\"/img/%s-%d.png\" alt=\"%s example %d\">\n", slug(t.keyword), i, t.keyword, i)
		}
	}
	return b.String()
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

func getDefaultConfig() *Config {
	return &Config{
		Items:     5,
		Days:      90,
		Interval:  24 * time.Hour,
		SpikeRate: 0.03,
		Profiles: []Profile{
			{Metric: "organic_traffic", Unit: "visits", Base: 400, Trend: 0.006, Weekly: 0.15, Noise: 0.05, SpikeSize: 2.5, Min: 0},
			{Metric: "pageviews", Unit: "views", Base: 650, Trend: 0.005, Weekly: 0.12, Noise: 0.06, SpikeSize: 2.2, Min: 0},
			{Metric: "ctr", Unit: "ratio", Base: 0.035, Trend: 0.002, Weekly: 0.05, Noise: 0.04, Min: 0, Max: 1},
			{Metric: "avg_position", Unit: "rank", Base: 14, Trend: -0.003, Noise: 0.03, Min: 1, Max: 100},
			{Metric: "bounce_rate", Unit: "ratio", Base: 0.48, Trend: -0.001, Weekly: 0.03, Noise: 0.03, Min: 0, Max: 1},
			{Metric: "avg_time_on_page", Unit: "seconds", Base: 150, Trend: 0.002, Weekly: 0.05, Noise: 0.08, Min: 0},
		},
	}
}
