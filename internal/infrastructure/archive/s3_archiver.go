package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

// S3Archiver writes gzip-compressed JSON dossiers to S3 with server-side encryption
type S3Archiver struct {
	client ObjectStore
	bucket string
	prefix string
	logger *zap.Logger
}

var _ Archiver = (*S3Archiver)(nil)

// NewS3Archiver loads the default AWS credential chain and checks the bucket
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.NewInternalError("failed to load AWS config").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// MinIO or LocalStack
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	archiver := NewS3ArchiverWithClient(client, cfg, logger)
	if err := archiver.ensureBucketExists(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return archiver, nil
}

// NewS3ArchiverWithClient builds an archiver over an existing client
func NewS3ArchiverWithClient(client ObjectStore, cfg config.ArchiveConfig, logger *zap.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With(zap.String("component", "incident_archiver")),
	}
}

func (a *S3Archiver) ArchiveIncident(ctx context.Context, d *Dossier) (*Result, error) {
	if d == nil || d.Incident == nil {
		return nil, errors.NewValidationError(errors.CodeValidation, "dossier has no incident")
	}

	body, err := encode(d)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode incident dossier").WithCause(err)
	}

	key := a.key(d)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ContentEncoding:      aws.String("gzip"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"incident-id":        d.Incident.ID.String(),
			"incident-type":      d.Incident.IncidentType,
			"severity":           string(d.Incident.Severity),
			"notification-count": strconv.Itoa(len(d.Notifications)),
			"remediation-count":  strconv.Itoa(len(d.Remediations)),
		},
	})
	if err != nil {
		return nil, errors.NewExternalError("s3", "failed to upload incident dossier").WithCause(err)
	}

	a.logger.Info("incident dossier archived",
		zap.String("incident_id", d.Incident.ID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(body)))

	return &Result{
		Key:       key,
		Location:  fmt.Sprintf("s3://%s/%s", a.bucket, key),
		SizeBytes: int64(len(body)),
	}, nil
}

// key partitions dossiers by resolution date: <prefix>/2026/03/02/<incident>-<unix>.json.gz
func (a *S3Archiver) key(d *Dossier) string {
	at := d.ArchivedAt.UTC()
	return path.Join(a.prefix,
		at.Format("2006"), at.Format("01"), at.Format("02"),
		fmt.Sprintf("%s-%d.json.gz", d.Incident.ID, at.Unix()))
}

func (a *S3Archiver) ensureBucketExists(ctx context.Context, region string) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, createErr := a.client.CreateBucket(ctx, input); createErr != nil {
		return errors.NewExternalError("s3", "archive bucket is not reachable").WithCause(createErr)
	}
	a.logger.Info("created archive bucket", zap.String("bucket", a.bucket))
	return nil
}

func encode(d *Dossier) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
