package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
)

// ObjectPutter is the slice of the S3 API the writer needs; *s3.Client satisfies it
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the archive client. Endpoint and static keys are for S3-compatible stores.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client from the default AWS credential chain, or
// from static keys when they are set
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Writer stores rendered reports
type Writer struct {
	s3     ObjectPutter
	logger ectologger.Logger
}

// NewWriter creates a report writer. s3 may be nil when only local paths are used.
func NewWriter(s3 ObjectPutter, logger ectologger.Logger) *Writer {
	return &Writer{s3: s3, logger: logger}
}

// Write renders result in the format implied by dest and stores it at dest,
// a filesystem path or an s3://bucket/key URL
func (w *Writer) Write(ctx context.Context, dest string, result any) error {
	ctx, span := tracing.StartSpan(ctx, "report.Writer.Write")
	defer span.End()

	format := FormatFor(dest)
	body, err := Render(format, result)
	if err != nil {
		return err
	}

	log := w.logger.WithContext(ctx).WithFields(map[string]any{
		"destination": dest,
		"format":      format,
		"bytes":       len(body),
	})

	if bucket, key, ok := ParseS3URL(dest); ok {
		if w.s3 == nil {
			return fmt.Errorf("cannot write %s: no s3 client configured", dest)
		}
		contentType := "text/markdown; charset=utf-8"
		if format == FormatJSON {
			contentType = "application/json"
		}
		_, err := w.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			log.WithError(err).Error("Failed to upload report")
			return fmt.Errorf("failed to upload report to %s: %w", dest, err)
		}
		log.Info("Uploaded report")
		return nil
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		log.WithError(err).Error("Failed to write report")
		return fmt.Errorf("failed to write report: %w", err)
	}
	log.Info("Wrote report")
	return nil
}

// ParseS3URL splits s3://bucket/key; ok is false for anything else
func ParseS3URL(dest string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(dest, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
