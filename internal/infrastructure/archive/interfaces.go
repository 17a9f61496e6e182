package archive

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

// Dossier is the complete record of an incident at the time it was resolved
type Dossier struct {
	Incident      *breach.Incident       `json:"incident"`
	StatusHistory []*breach.StatusChange `json:"statusHistory"`
	Notifications []*breach.Notification `json:"notifications"`
	Remediations  []*breach.Remediation  `json:"remediations"`
	Deadlines     []breach.Deadline      `json:"deadlines"`
	ArchivedAt    time.Time              `json:"archivedAt"`
}

// Result describes a stored dossier
type Result struct {
	Key       string `json:"key"`
	Location  string `json:"location"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Archiver exports resolved incident dossiers to long-term storage
type Archiver interface {
	ArchiveIncident(ctx context.Context, d *Dossier) (*Result, error)
}

// ObjectStore is the subset of the S3 API the archiver uses
type ObjectStore interface {
	HeadBucket(ctx context.Context, input *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, input *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}
