package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// ContentProviderConfig contains configuration for the directory content provider
type ContentProviderConfig struct {
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
	// Reload re-reads the directory on every ListContent call
	Reload bool `json:"reload" yaml:"reload" mapstructure:"reload"`
}

// ContentProvider serves content snapshots stored one per file as JSON or
// YAML. The item ID comes from the document, or the file name when empty.
type ContentProvider struct {
	config *ContentProviderConfig
	logger *logrus.Logger
	mu     sync.RWMutex
	index  map[string]string // content ID -> file path
	loaded bool
}

// NewContentProvider creates a directory content provider
func NewContentProvider(config *ContentProviderConfig, logger *logrus.Logger) (*ContentProvider, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "ContentProviderConfig cannot be nil")
	}
	if config.BasePath == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "BasePath is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ContentProvider{
		config: config,
		logger: logger,
		index:  make(map[string]string),
	}, nil
}

// GetContent returns a content item by ID
func (p *ContentProvider) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	if err := p.ensureIndex(false); err != nil {
		return nil, err
	}

	p.mu.RLock()
	path, ok := p.index[id]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("content %s not found", id)).WithCause(errors.ErrContentNotFound)
	}
	return readContent(path)
}

// ListContent returns the IDs of all published content items, sorted
func (p *ContentProvider) ListContent(ctx context.Context) ([]string, error) {
	if err := p.ensureIndex(p.config.Reload); err != nil {
		return nil, err
	}

	p.mu.RLock()
	paths := make(map[string]string, len(p.index))
	for id, path := range p.index {
		paths[id] = path
	}
	p.mu.RUnlock()

	ids := make([]string, 0, len(paths))
	for id, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := readContent(path)
		if err != nil {
			p.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable content file")
			continue
		}
		if item.IsPublished() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveContent writes item as JSON under the base path
func (p *ContentProvider) SaveContent(ctx context.Context, item *models.ContentItem) error {
	if item == nil || item.ID == "" {
		return errors.NewValidationError(errors.CodeMissingField, "content id is required")
	}
	if err := os.MkdirAll(p.config.BasePath, 0o755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to create content directory")
	}

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to encode content")
	}
	path := filepath.Join(p.config.BasePath, safeName(item.ID)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("Failed to write file: %s", path))
	}

	p.mu.Lock()
	p.index[item.ID] = path
	p.mu.Unlock()
	return nil
}

func (p *ContentProvider) ensureIndex(force bool) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded && !force {
		return nil
	}

	entries, err := os.ReadDir(p.config.BasePath)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("Failed to read content directory: %s", p.config.BasePath))
	}

	index := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isContentFile(entry.Name()) {
			continue
		}
		path := filepath.Join(p.config.BasePath, entry.Name())
		item, err := readContent(path)
		if err != nil {
			p.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable content file")
			continue
		}
		if prev, dup := index[item.ID]; dup {
			p.logger.WithFields(logrus.Fields{
				"content_id": item.ID,
				"kept":       prev,
				"ignored":    path,
			}).Warn("Duplicate content ID")
			continue
		}
		index[item.ID] = path
	}

	p.mu.Lock()
	p.index = index
	p.loaded = true
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"base_path": p.config.BasePath,
		"items":     len(index),
	}).Debug("Indexed content directory")
	return nil
}

func readContent(path string) (*models.ContentItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("Failed to read file: %s", path))
	}

	var item models.ContentItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &item)
	default:
		err = json.Unmarshal(data, &item)
	}
	if err != nil {
		return nil, errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("Failed to decode content file: %s", path)).WithDetails(err.Error()).WithCause(errors.ErrInvalidContent)
	}

	if item.ID == "" {
		base := filepath.Base(path)
		item.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &item, nil
}

func isContentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return !strings.HasPrefix(name, ".")
	}
	return false
}

// safeName maps an ID to a file name without path separators
func safeName(id string) string {
	return strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(id)
}

var _ interfaces.ContentProvider = (*ContentProvider)(nil)
