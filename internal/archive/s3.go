// Package archive keeps raw interview transcripts in an S3-compatible bucket
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// ErrNotFound is returned when no archived transcript exists for a key
var ErrNotFound = errors.New("archived transcript not found")

// S3Config configures the archive bucket
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Document is the archived form of one feedback record's transcript
type Document struct {
	InterviewID    string        `json:"interviewId"`
	FeedbackID     string        `json:"feedbackId"`
	CandidateEmail string        `json:"candidateEmail,omitempty"`
	SystemError    bool          `json:"systemError"`
	TotalScore     float64       `json:"totalScore"`
	ArchivedAt     time.Time     `json:"archivedAt"`
	Transcript     []models.Turn `json:"transcript"`
}

// S3Archive writes transcripts to interviews/<interviewId>/<feedbackId>.json
type S3Archive struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
	now      func() time.Time
}

// NewS3Archive validates cfg and creates the client; the bucket is created
// on first write when missing
func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init s3 client: %w", err)
	}

	return &S3Archive{
		client: client,
		bucket: bucket,
		region: region,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *S3Archive) ensureBucket(ctx context.Context) error {
	a.initOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

// ArchiveTranscript implements feedback.Archiver
func (a *S3Archive) ArchiveTranscript(ctx context.Context, rec models.FeedbackRecord) error {
	if err := a.ensureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket: %w", err)
	}

	data, err := json.Marshal(NewDocument(rec, a.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(rec.InterviewID, rec.ID), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload transcript: %w", err)
	}
	return nil
}

// Get reads back an archived transcript
func (a *S3Archive) Get(ctx context.Context, interviewID, feedbackID string) (Document, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, ObjectKey(interviewID, feedbackID), minio.GetObjectOptions{})
	if err != nil {
		return Document{}, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse archived transcript: %w", err)
	}
	return doc, nil
}

// NewDocument builds the archived form of rec
func NewDocument(rec models.FeedbackRecord, at time.Time) Document {
	return Document{
		InterviewID:    rec.InterviewID,
		FeedbackID:     rec.ID,
		CandidateEmail: rec.CandidateEmail,
		SystemError:    rec.SystemError,
		TotalScore:     rec.TotalScore,
		ArchivedAt:     at,
		Transcript:     rec.Transcript,
	}
}

// ObjectKey returns the bucket key of one archived transcript
func ObjectKey(interviewID, feedbackID string) string {
	return "interviews/" + strings.Trim(strings.TrimSpace(interviewID), "/") + "/" + strings.TrimSpace(feedbackID) + ".json"
}
