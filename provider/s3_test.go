package provider

import (
	"context"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gridq/account"
)

// fakeS3 serves a flat key space with one page per call.
type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := map[string]bool{}
	for key, body := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(body)))})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func newFakeProvider() *S3Provider {
	return &S3Provider{
		bucket: "demoResc",
		client: &fakeS3{objects: map[string]string{
			"tempZone/home/alice/a.txt":     "aaa",
			"tempZone/home/alice/sub/b.txt": "bb",
			"tempZone/home/alice/sub/":      "",
		}},
	}
}

func TestS3Provider_BuildKey(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		expect string
	}{
		{"", "test.txt", "test.txt"},
		{"", "/tempZone/home/test.txt", "tempZone/home/test.txt"},
		{"myprefix", "test.txt", "myprefix/test.txt"},
		{"myprefix/", "/test.txt", "myprefix/test.txt"},
		{"my/deep/prefix/", "/some/path.txt", "my/deep/prefix/some/path.txt"},
		{"", "", ""},
		{"myprefix", "", "myprefix"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"+"+tt.path, func(t *testing.T) {
			p := &S3Provider{prefix: tt.prefix}
			assert.Equal(t, tt.expect, p.buildKey(tt.path))
		})
	}
}

func TestS3Provider_Stat(t *testing.T) {
	p := newFakeProvider()
	ctx := context.Background()

	info, err := p.Stat(ctx, "/tempZone/home/alice/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Name())
	assert.Equal(t, int64(3), info.Size())
	assert.False(t, info.IsDir())

	info, err = p.Stat(ctx, "/tempZone/home/alice")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = p.Stat(ctx, "/tempZone/home/bob")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestS3Provider_ListSkipsPlaceholders(t *testing.T) {
	p := newFakeProvider()

	infos, err := p.List(context.Background(), "/tempZone/home/alice")
	require.NoError(t, err)

	got := map[string]bool{}
	for _, i := range infos {
		got[i.Name()] = i.IsDir()
	}
	assert.Equal(t, map[string]bool{"a.txt": false, "sub": true}, got)

	infos, err = p.List(context.Background(), "/tempZone/home/alice/sub")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "b.txt", infos[0].Name())
}

func TestS3Provider_OpenReadNotFound(t *testing.T) {
	p := newFakeProvider()

	rc, err := p.OpenRead(context.Background(), "/tempZone/home/alice/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))

	_, err = p.OpenRead(context.Background(), "/tempZone/home/alice/zzz")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestS3Sessions_ClientPerCredential(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	sessions := NewS3Sessions(S3Config{Region: "us-east-1", Endpoint: "http://127.0.0.1:9000", UsePathStyle: true})
	ctx := context.Background()

	before := account.New("grid.example.org", 9000, "tempZone", "alice", "old-secret", "demoResc")
	first, err := sessions.client(ctx, before)
	require.NoError(t, err)
	again, err := sessions.client(ctx, before)
	require.NoError(t, err)
	assert.Same(t, first, again)

	rotated := account.New("grid.example.org", 9000, "tempZone", "alice", "new-secret", "demoResc")
	fresh, err := sessions.client(ctx, rotated)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)

	creds, err := fresh.Options().Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.AccessKeyID)
	assert.Equal(t, "new-secret", creds.SecretAccessKey)
}
