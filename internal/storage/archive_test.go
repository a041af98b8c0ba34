package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestArchive(p ObjectPutter, prefix string) *S3Archive {
	a := NewS3ArchiveWithClient(p, "crm-imports", prefix)
	a.now = func() time.Time { return time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC) }
	return a
}

func TestS3Archive_Key(t *testing.T) {
	a := newTestArchive(&fakePutter{}, "/lead-imports/")
	key := a.Key("expo.csv", []byte("abc"))
	assert.Equal(t, "lead-imports/2026/04/ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad/expo.csv", key)

	bare := newTestArchive(&fakePutter{}, "")
	assert.Equal(t, "2026/04/ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad/upload", bare.Key("", []byte("abc")))
	assert.Contains(t, bare.Key(`C:\Users\me\leads.xlsx`, []byte("abc")), "/leads.xlsx")
}

func TestS3Archive_Archive(t *testing.T) {
	put := &fakePutter{}
	a := newTestArchive(put, "uploads")

	key, err := a.Archive(context.Background(), "leads.xlsx", []byte("PK\x03\x04data"))
	require.NoError(t, err)
	require.NotNil(t, put.input)
	assert.Equal(t, "crm-imports", aws.ToString(put.input.Bucket))
	assert.Equal(t, key, aws.ToString(put.input.Key))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", aws.ToString(put.input.ContentType))
	assert.Equal(t, int64(8), aws.ToInt64(put.input.ContentLength))
	assert.Equal(t, []byte("PK\x03\x04data"), put.body)
}

func TestS3Archive_ArchiveError(t *testing.T) {
	put := &fakePutter{err: errors.New("access denied")}
	_, err := newTestArchive(put, "").Archive(context.Background(), "a.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://crm-imports/")
}

func TestNopArchive(t *testing.T) {
	key, err := NopArchive{}.Archive(context.Background(), "a.csv", []byte("x"))
	assert.NoError(t, err)
	assert.Empty(t, key)
}
