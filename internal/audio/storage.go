package audio

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/voxdial/voxdial/pkg/logging"
)

// Storage is the object-storage collaborator for synthesized audio.
type Storage interface {
	Upload(ctx context.Context, audio []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage uploads synthesized audio to S3 and returns a public URL the
// carrier can fetch with Play.
type S3Storage struct {
	bucket   string
	region   string
	s3Client S3API
	logger   *logging.Logger
}

// NewS3Storage creates the audio object store. If bucket is empty the store
// reports itself unavailable and the packager skips the storage tier.
func NewS3Storage(s3Client S3API, bucket, region string, logger *logging.Logger) *S3Storage {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Storage{bucket: bucket, region: region, s3Client: s3Client, logger: logger}
}

// Enabled returns true if the storage tier is configured.
func (s *S3Storage) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

var _ Storage = (*S3Storage)(nil)

// Upload writes the audio under a content-addressed key.
func (s *S3Storage) Upload(ctx context.Context, audio []byte) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("audio: storage not configured")
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("audio: empty payload")
	}

	sum := sha256.Sum256(audio)
	now := time.Now().UTC()
	key := fmt.Sprintf("tts/v1/%d/%02d/%s.mp3", now.Year(), now.Month(), hex.EncodeToString(sum[:16]))

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/mpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("audio: s3 put %s: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	s.logger.Debug("audio: uploaded synthesized audio",
		"key", key,
		"bytes", len(audio),
	)
	return url, nil
}

// Delete removes a previously uploaded object by its URL.
func (s *S3Storage) Delete(ctx context.Context, url string) error {
	if !s.Enabled() {
		return fmt.Errorf("audio: storage not configured")
	}
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)
	key := strings.TrimPrefix(url, prefix)
	if key == url || key == "" {
		return fmt.Errorf("audio: url %s does not belong to bucket %s", url, s.bucket)
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("audio: s3 delete %s: %w", key, err)
	}
	return nil
}
