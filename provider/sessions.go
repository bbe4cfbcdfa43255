package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/franksops/gridq/account"
)

// LocalSessions serves every resource as a directory under Root. It stands in
// for a grid when running offline.
type LocalSessions struct {
	Root string
}

// NewLocalSessions creates LocalSessions rooted at root.
func NewLocalSessions(root string) *LocalSessions {
	return &LocalSessions{Root: root}
}

// Open returns a provider rooted at Root/<resource>.
func (s *LocalSessions) Open(ctx context.Context, acct account.Account, resource string) (Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resource = resourceOrDefault(acct, resource)
	if resource == "" {
		return nil, fmt.Errorf("no resource given and account %s has no default resource", acct)
	}
	if strings.ContainsAny(resource, `/\`) || resource == "." || resource == ".." {
		return nil, fmt.Errorf("invalid resource name %q", resource)
	}

	dir := filepath.Join(s.Root, resource)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to prepare resource %s: %w", resource, err)
	}
	return NewLocalProvider(dir), nil
}

// S3Config selects how S3Sessions reach the object store.
type S3Config struct {
	Region string
	// Endpoint overrides the service URL. When empty and the account names a
	// host, https://host:port is used.
	Endpoint     string
	UsePathStyle bool
}

// S3Sessions opens one S3 bucket per resource, authenticating with the
// account's user and credential as static access keys.
type S3Sessions struct {
	cfg S3Config

	mu      sync.Mutex
	clients map[string]*s3.Client
}

// NewS3Sessions creates an S3Sessions factory.
func NewS3Sessions(cfg S3Config) *S3Sessions {
	return &S3Sessions{cfg: cfg, clients: make(map[string]*s3.Client)}
}

// Open returns an S3Provider on the resource's bucket.
func (s *S3Sessions) Open(ctx context.Context, acct account.Account, resource string) (Provider, error) {
	bucket := resourceOrDefault(acct, resource)
	if bucket == "" {
		return nil, fmt.Errorf("no resource given and account %s has no default resource", acct)
	}

	client, err := s.client(ctx, acct)
	if err != nil {
		return nil, err
	}
	return NewS3Provider(client, bucket, ""), nil
}

// clientKey identifies a client by account and credential, so a rotated
// credential gets a fresh client.
func clientKey(acct account.Account) string {
	sum := sha256.Sum256([]byte(acct.Credential))
	return acct.String() + "/" + hex.EncodeToString(sum[:8])
}

func (s *S3Sessions) client(ctx context.Context, acct account.Account) (*s3.Client, error) {
	key := clientKey(acct)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[key]; ok {
		return c, nil
	}

	secret, err := account.Reveal(acct.Credential)
	if err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{}
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if acct.User != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(acct.User, secret, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	endpoint := s.cfg.Endpoint
	if endpoint == "" && acct.Host != "" {
		endpoint = "https://" + acct.Endpoint()
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = s.cfg.UsePathStyle
	})
	s.clients[key] = c
	return c, nil
}
