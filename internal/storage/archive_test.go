package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/engagebot/internal/clock"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestArchive_UploadJSON(t *testing.T) {
	fake := &fakeS3{}
	clk := clock.NewManual(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	a := newArchive(Config{Bucket: "engage", PublicBaseURL: "https://cdn.example.com/"}, fake, clk)

	url, err := a.UploadJSON(context.Background(), "monthly acct/42", map[string]int{"months": 6})
	require.NoError(t, err)

	key := aws.ToString(fake.input.Key)
	assert.Regexp(t, regexp.MustCompile(`^reports/2024/06/03/monthly-acct-42-[0-9a-f-]{36}\.json$`), key)
	assert.Equal(t, "https://cdn.example.com/"+key, url)
	assert.Equal(t, "engage", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "application/json", aws.ToString(fake.input.ContentType))
	assert.JSONEq(t, `{"months":6}`, string(fake.body))
}

func TestArchive_UploadErrors(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	a := newArchive(Config{Bucket: "engage", PublicBaseURL: "https://cdn.example.com", Prefix: "/custom/"}, fake, clock.NewManual(time.Now()))

	_, err := a.Upload(context.Background(), "x", nil, "")
	assert.Error(t, err)

	_, err = a.Upload(context.Background(), "x", []byte("a,b"), "text/csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewArchive_Validation(t *testing.T) {
	_, err := NewArchive(Config{}, clock.Real{})
	assert.Error(t, err)

	_, err = NewArchive(Config{Bucket: "b", Region: "us-east-1"}, clock.Real{})
	assert.Error(t, err)

	a, err := NewArchive(Config{Bucket: "b", Region: "us-east-1", AccessKey: "k", SecretKey: "s", PublicBaseURL: "https://x"}, clock.Real{})
	require.NoError(t, err)
	assert.NotNil(t, a)
}
