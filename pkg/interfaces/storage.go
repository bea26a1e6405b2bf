package interfaces

import (
	"context"
	"time"

	"github.com/inferloop/contentscore/pkg/models"
)

// Storage defines the lifecycle shared by every storage backend
type Storage interface {
	// Connect establishes connection to the storage backend
	Connect(ctx context.Context) error

	// Close closes the connection and cleans up resources
	Close() error

	// Ping tests the connection
	Ping(ctx context.Context) error

	// Health returns health status of the storage
	Health(ctx context.Context) (*HealthStatus, error)
}

// MetricStore supplies metric histories for content items. Returned series
// are chronological and deduplicated; gaps are left as gaps.
type MetricStore interface {
	Storage

	// Query returns the series for one metric of one content item
	Query(ctx context.Context, query *models.MetricQuery) (*models.MetricSeries, error)

	// Write appends observations for a content item
	Write(ctx context.Context, contentID string, series *models.MetricSeries) error

	// ListMetrics returns the metric names recorded for a content item
	ListMetrics(ctx context.Context, contentID string) ([]string, error)
}

// ReportStore keeps score report history
type ReportStore interface {
	Storage

	// SaveReport persists a report. Saving the same report ID twice is a no-op.
	SaveReport(ctx context.Context, report *models.ScoreReport) error

	// LatestReport returns the newest valid report for a content item generated
	// strictly before the given time
	LatestReport(ctx context.Context, contentID string, before time.Time) (*models.ScoreReport, error)

	// History returns reports for a content item, newest first
	History(ctx context.Context, contentID string, limit int) ([]*models.ScoreReport, error)
}

// ReportArchive stores finished reports as immutable objects
type ReportArchive interface {
	// Archive writes a named JSON document and returns its location
	Archive(ctx context.Context, name string, payload interface{}) (string, error)
}

// ContentProvider resolves content snapshots
type ContentProvider interface {
	// GetContent returns a content item by ID
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)

	// ListContent returns the IDs of all published content items
	ListContent(ctx context.Context) ([]string, error)
}

// HealthStatus represents storage health status
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency"`
	Errors    []string               `json:"errors,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
