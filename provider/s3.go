package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

var _ Provider = (*S3Provider)(nil)

// S3API is the subset of the S3 client the provider calls.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Provider maps a grid resource onto one bucket. Collections are key prefixes.
type S3Provider struct {
	client   S3API
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Provider creates a provider over bucket, scoping every key under prefix.
func NewS3Provider(client *s3.Client, bucket, prefix string) *S3Provider {
	return &S3Provider{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}
}

// buildKey constructs the full S3 key based on the provider's prefix.
func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	if key != "" {
		head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return &fileInfo{
				name:    path.Base(key),
				size:    aws.ToInt64(head.ContentLength),
				isDir:   strings.HasSuffix(key, "/"),
				modTime: aws.ToTime(head.LastModified),
			}, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("stat %q: %w", pth, err)
		}
	}

	// no object, a collection exists when anything lives under key/
	dirPrefix := key + "/"
	if key == "" {
		dirPrefix = ""
	}
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", pth, err)
	}
	if len(out.Contents) > 0 || len(out.CommonPrefixes) > 0 {
		return &fileInfo{name: path.Base(key), isDir: true}, nil
	}
	return nil, fmt.Errorf("stat %q: %w", pth, fs.ErrNotExist)
}

func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.buildKey(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	var token *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(dirPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirPrefix), "/")
			infos = append(infos, &fileInfo{name: name, isDir: true})
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" || strings.HasSuffix(name, "/") {
				// collection placeholder objects
				continue
			}
			infos = append(infos, &fileInfo{
				name:    name,
				size:    aws.ToInt64(obj.Size),
				modTime: aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return infos, nil
}

func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("open %q: %w", pth, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("open %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite streams into a multipart upload running in the background. The
// object exists once Close returns nil.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string, metadata FileInfo) (io.WriteCloser, error) {
	key := p.buildKey(pth)
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	go func() {
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		errCh <- err
	}()

	return &s3Writer{pw: pw, errCh: errCh}, nil
}

type s3Writer struct {
	pw    *io.PipeWriter
	errCh <-chan error
}

func (w *s3Writer) Write(b []byte) (int, error) {
	return w.pw.Write(b)
}

func (w *s3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.errCh; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
