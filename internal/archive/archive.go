package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/models"
)

// sink persists one encoded failure record under key.
type sink interface {
	save(ctx context.Context, key string, body []byte, rec models.FailureRecord) (string, error)
}

// Archive writes failure records to a local directory or an S3 bucket.
// A nil *Archive is valid and stores nothing.
type Archive struct {
	sink sink
}

// New builds the archive selected by cfg.ArchiveDestination. It returns nil
// when archiving is disabled.
func New(ctx context.Context, cfg config.Config) (*Archive, error) {
	switch strings.ToLower(cfg.ArchiveDestination) {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveLocal:
		return &Archive{sink: dirSink{root: cfg.ArchiveDir}}, nil
	case config.ArchiveS3:
		if cfg.ArchiveS3Bucket == "" {
			return nil, errors.New("s3 archive requested but ARCHIVE_S3_BUCKET is not configured")
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Archive{sink: bucketSink{client: client, bucket: cfg.ArchiveS3Bucket}}, nil
	default:
		return nil, fmt.Errorf("unknown archive destination %q", cfg.ArchiveDestination)
	}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveS3Region),
	}
	if cfg.ArchiveS3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.ArchiveS3AccessKey, cfg.ArchiveS3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArchiveS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ArchiveS3Endpoint)
		}
		o.UsePathStyle = cfg.ArchiveS3PathStyle
	}), nil
}

// Store saves one record and returns where it landed.
func (a *Archive) Store(ctx context.Context, rec models.FailureRecord) (string, error) {
	if a == nil || a.sink == nil {
		return "", nil
	}
	body, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	loc, err := a.sink.save(ctx, RecordKey(rec), body, rec)
	if err != nil {
		return "", fmt.Errorf("archive failure record of job %s: %w", rec.JobName, err)
	}
	return loc, nil
}

// encodeRecord renders one indented JSON document per record, newline terminated.
func encodeRecord(rec models.FailureRecord) ([]byte, error) {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode failure record: %w", err)
	}
	return append(body, '\n'), nil
}

// RecordKey is failures/{namespace}/{job}-{event_id}.json. Each component is
// reduced to a single safe path segment, so a record can never escape the
// failures/ prefix.
func RecordKey(rec models.FailureRecord) string {
	name := keySegment(rec.JobName)
	if rec.EventID != "" {
		name += "-" + keySegment(rec.EventID)
	}
	return path.Join("failures", keySegment(rec.Namespace), name+".json")
}

func keySegment(s string) string {
	seg := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	seg = strings.TrimLeft(seg, ".")
	if seg == "" {
		return "_"
	}
	return seg
}

// dirSink keeps records under root, mirroring the key layout.
type dirSink struct {
	root string
}

// save writes through a temp file and rename, so readers never see a partial record.
func (d dirSink) save(_ context.Context, key string, body []byte, _ models.FailureRecord) (string, error) {
	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".record-*")
	if err != nil {
		return "", fmt.Errorf("create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod record: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename record: %w", err)
	}
	return dst, nil
}

// bucketSink puts records into an S3 or MinIO bucket. Pipeline, zone and
// status travel as object metadata so records can be filtered without reading them.
type bucketSink struct {
	client *s3.Client
	bucket string
}

func (b bucketSink) save(ctx context.Context, key string, body []byte, rec models.FailureRecord) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    recordMetadata(rec),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", b.bucket, key, err)
	}
	return "s3://" + b.bucket + "/" + key, nil
}

func recordMetadata(rec models.FailureRecord) map[string]string {
	return map[string]string{
		"pipeline":  rec.Pipeline,
		"zone":      rec.Zone,
		"status":    string(rec.Status),
		"source-id": rec.SourceID,
	}
}
