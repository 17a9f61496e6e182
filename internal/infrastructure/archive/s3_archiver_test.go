package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil/fixtures"
)

// MockS3Client is a mock implementation of the S3 client for testing
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) HeadBucket(ctx context.Context, input *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadBucketOutput), args.Error(1)
}

func (m *MockS3Client) CreateBucket(ctx context.Context, input *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func testConfig() config.ArchiveConfig {
	return config.ArchiveConfig{Enabled: true, Bucket: "clinic-incidents", Prefix: "incidents", Region: "eu-west-1"}
}

func TestS3Archiver_ArchiveIncident(t *testing.T) {
	ctx := context.Background()
	resolvedAt := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	inc := fixtures.Incident(t, resolvedAt.Add(-48*time.Hour))
	inc.Status = breach.StatusResolved

	n, err := breach.NewNotification(inc.ID, breach.NotificationGDPRSupervisory, "dpa@authority.example.eu", "", "officer", resolvedAt.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, n.MarkSent(resolvedAt.Add(-24*time.Hour)))

	dossier := &Dossier{
		Incident:      inc,
		Notifications: []*breach.Notification{n},
		Deadlines:     breach.ComputeDeadlines(inc, []*breach.Notification{n}, resolvedAt),
		ArchivedAt:    resolvedAt,
	}

	client := &MockS3Client{}
	var uploaded *s3.PutObjectInput
	client.On("PutObject", ctx, mock.AnythingOfType("*s3.PutObjectInput")).
		Run(func(args mock.Arguments) { uploaded = args.Get(1).(*s3.PutObjectInput) }).
		Return(&s3.PutObjectOutput{}, nil)

	archiver := NewS3ArchiverWithClient(client, testConfig(), zaptest.NewLogger(t))
	res, err := archiver.ArchiveIncident(ctx, dossier)
	require.NoError(t, err)

	wantKey := fmt.Sprintf("incidents/2026/03/02/%s-%d.json.gz", inc.ID, resolvedAt.Unix())
	assert.Equal(t, wantKey, res.Key)
	assert.Equal(t, "s3://clinic-incidents/"+wantKey, res.Location)

	require.NotNil(t, uploaded)
	assert.Equal(t, types.ServerSideEncryptionAes256, uploaded.ServerSideEncryption)
	assert.Equal(t, inc.ID.String(), uploaded.Metadata["incident-id"])
	assert.Equal(t, "1", uploaded.Metadata["notification-count"])

	zr, err := gzip.NewReader(uploaded.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	var decoded struct {
		Incident struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"incident"`
		Notifications []map[string]interface{} `json:"notifications"`
		Deadlines     []map[string]interface{} `json:"deadlines"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(raw)).Decode(&decoded))
	assert.Equal(t, inc.ID.String(), decoded.Incident.ID)
	assert.Equal(t, "resolved", decoded.Incident.Status)
	assert.Len(t, decoded.Notifications, 1)
	assert.Len(t, decoded.Deadlines, 3)
}

func TestS3Archiver_UploadFailure(t *testing.T) {
	ctx := context.Background()
	client := &MockS3Client{}
	client.On("PutObject", ctx, mock.Anything).Return(nil, fmt.Errorf("access denied"))

	archiver := NewS3ArchiverWithClient(client, testConfig(), zaptest.NewLogger(t))
	_, err := archiver.ArchiveIncident(ctx, &Dossier{Incident: fixtures.Incident(t, time.Now()), ArchivedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3")

	_, err = archiver.ArchiveIncident(ctx, &Dossier{})
	assert.Error(t, err)
}

func TestS3Archiver_EnsureBucketExists(t *testing.T) {
	ctx := context.Background()
	client := &MockS3Client{}
	client.On("HeadBucket", ctx, mock.Anything).Return(nil, fmt.Errorf("not found"))
	client.On("CreateBucket", ctx, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
		return in.CreateBucketConfiguration != nil &&
			in.CreateBucketConfiguration.LocationConstraint == types.BucketLocationConstraint("eu-west-1")
	})).Return(&s3.CreateBucketOutput{}, nil)

	archiver := NewS3ArchiverWithClient(client, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, archiver.ensureBucketExists(ctx, "eu-west-1"))
	client.AssertExpectations(t)
}

func TestNewArchiver_Disabled(t *testing.T) {
	a, err := NewArchiver(context.Background(), config.ArchiveConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	res, err := a.ArchiveIncident(context.Background(), &Dossier{})
	assert.NoError(t, err)
	assert.Nil(t, res)

	_, err = NewArchiver(context.Background(), config.ArchiveConfig{Enabled: true}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
