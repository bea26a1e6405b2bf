package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
)

// S3Config holds configuration for the S3 report archive
type S3Config struct {
	Region          string        `json:"region" yaml:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" yaml:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" yaml:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" yaml:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" yaml:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" yaml:"part_size" mapstructure:"part_size"`
	UseCompression  bool          `json:"use_compression" yaml:"use_compression" mapstructure:"use_compression"`
	StorageClass    string        `json:"storage_class" yaml:"storage_class" mapstructure:"storage_class"`
}

// ReportArchive writes finished reports to S3 as immutable JSON objects
type ReportArchive struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
	closed     bool
}

// archiveEnvelope wraps every archived payload
type archiveEnvelope struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	ArchivedAt time.Time       `json:"archived_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewReportArchive creates a new S3 report archive
func NewReportArchive(config *S3Config, logger *logrus.Logger) (*ReportArchive, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}

	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	return &ReportArchive{
		config: config,
		logger: logger,
	}, nil
}

// Connect creates the AWS session and checks bucket access
func (s *ReportArchive) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil // Already connected
	}

	// Create AWS config
	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}

	// Set credentials if provided
	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}

	// Set custom endpoint if provided (for S3-compatible services)
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}

	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to create AWS session")
	}

	client := s3.New(sess)
	uploader := s3manager.NewUploader(sess)
	if s.config.PartSize > 0 {
		uploader.PartSize = s.config.PartSize
	}

	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("Failed to access bucket '%s'", s.config.Bucket))
	}

	s.s3Client = client
	s.uploader = uploader
	s.downloader = s3manager.NewDownloader(sess)
	s.closed = false

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
		"prefix": s.config.Prefix,
	}).Info("Connected to S3")

	return nil
}

// Close releases the S3 clients
func (s *ReportArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	s.closed = true

	s.logger.Info("S3 connection closed")
	return nil
}

// Ping checks bucket access
func (s *ReportArchive) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.s3Client == nil {
		return errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}

	if _, err := s.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "S3 ping failed")
	}
	return nil
}

// Archive writes payload under name and returns its s3:// location
func (s *ReportArchive) Archive(ctx context.Context, name string, payload interface{}) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.uploader == nil {
		return "", errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}
	if name == "" {
		return "", errors.NewValidationError(errors.CodeMissingField, "archive name is required")
	}

	body, err := s.encode(name, payload, time.Now().UTC())
	if err != nil {
		return "", err
	}

	key := s.generateKey(name)
	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]*string{
			"archive-name": aws.String(name),
		},
	}
	if s.config.UseCompression {
		input.ContentEncoding = aws.String("gzip")
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to upload to S3")
	}

	location := fmt.Sprintf("s3://%s/%s", s.config.Bucket, key)
	s.logger.WithFields(logrus.Fields{
		"location": location,
		"bytes":    len(body),
	}).Info("Archived report")
	return location, nil
}

// Fetch downloads an archived payload and decodes it into dst
func (s *ReportArchive) Fetch(ctx context.Context, name string, dst interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.downloader == nil {
		return errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(name)),
	})
	if err != nil {
		var aerr awserr.Error
		if stderrors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return errors.NewStorageError(errors.CodeDataNotFound,
				fmt.Sprintf("archive '%s' not found", name)).WithCause(errors.ErrDataNotFound)
		}
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to download from S3")
	}

	return s.decode(buf.Bytes(), dst)
}

// List returns archive names under prefix
func (s *ReportArchive) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.s3Client == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}

	names := make([]string, 0)
	err := s.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.keyRoot() + prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			if name := s.extractName(aws.StringValue(obj.Key)); name != "" {
				names = append(names, name)
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed, "Failed to list S3 objects")
	}
	return names, nil
}

// Helper methods

func (s *ReportArchive) encode(name string, payload interface{}, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to serialize payload")
	}
	data, err := json.Marshal(archiveEnvelope{
		Name:       name,
		Version:    "1.0",
		ArchivedAt: at,
		Payload:    raw,
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to serialize archive")
	}
	if !s.config.UseCompression {
		return data, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to compress archive")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to compress archive")
	}
	return buf.Bytes(), nil
}

func (s *ReportArchive) decode(data []byte, dst interface{}) error {
	if s.config.UseCompression {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decompress archive")
		}
		defer gz.Close()
		if data, err = io.ReadAll(gz); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decompress archive")
		}
	}

	var envelope archiveEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to deserialize archive")
	}
	if err := json.Unmarshal(envelope.Payload, dst); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to deserialize payload")
	}
	return nil
}

func (s *ReportArchive) keyRoot() string {
	if s.config.Prefix != "" {
		return path.Join(s.config.Prefix, "reports") + "/"
	}
	return "reports/"
}

func (s *ReportArchive) generateKey(name string) string {
	key := s.keyRoot() + strings.TrimPrefix(name, "/") + ".json"
	if s.config.UseCompression {
		key += ".gz"
	}
	return key
}

func (s *ReportArchive) extractName(key string) string {
	if !strings.HasPrefix(key, s.keyRoot()) {
		return ""
	}
	name := strings.TrimPrefix(key, s.keyRoot())
	name = strings.TrimSuffix(name, ".gz")
	if !strings.HasSuffix(name, ".json") {
		return ""
	}
	return strings.TrimSuffix(name, ".json")
}

var _ interfaces.ReportArchive = (*ReportArchive)(nil)
