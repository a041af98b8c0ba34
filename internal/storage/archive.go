// Package storage keeps the original bytes of every uploaded import file.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores an uploaded file and returns the key it was stored under.
type Archiver interface {
	Archive(ctx context.Context, fileName string, data []byte) (string, error)
}

// ObjectPutter is the subset of *s3.Client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes uploads to one bucket under a dated, content-addressed key.
type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// LoadS3Client builds an S3 client from the default AWS credential chain for
// region and, when set, the named shared profile.
func LoadS3Client(ctx context.Context, region, profile string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// NewS3Archive returns an archive for bucket using LoadS3Client.
func NewS3Archive(ctx context.Context, bucket, prefix, region, profile string) (*S3Archive, error) {
	client, err := LoadS3Client(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return NewS3ArchiveWithClient(client, bucket, prefix), nil
}

// NewS3ArchiveWithClient wraps an existing client.
func NewS3ArchiveWithClient(client ObjectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// Archive uploads data. Re-uploading identical bytes in the same month
// overwrites the same object.
func (a *S3Archive) Archive(ctx context.Context, fileName string, data []byte) (string, error) {
	key := a.Key(fileName, data)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType(fileName)),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("archiving %s to s3://%s/%s: %w", fileName, a.bucket, key, err)
	}
	return key, nil
}

// Key renders <prefix>/<yyyy>/<mm>/<sha256>/<fileName>.
func (a *S3Archive) Key(fileName string, data []byte) string {
	sum := sha256.Sum256(data)
	now := a.now().UTC()
	parts := []string{
		now.Format("2006"),
		now.Format("01"),
		hex.EncodeToString(sum[:]),
		safeName(fileName),
	}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

func safeName(fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

func contentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xlsm":
		return "application/vnd.ms-excel.sheet.macroEnabled.12"
	default:
		return "application/octet-stream"
	}
}

// NopArchive is used when archiving is disabled. It stores nothing and
// returns an empty key.
type NopArchive struct{}

func (NopArchive) Archive(context.Context, string, []byte) (string, error) { return "", nil }
