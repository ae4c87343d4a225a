package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vbt-go/internal/vbt"
)

const (
	// DefaultEndpointDomain is the account-scoped S3 endpoint domain used
	// when settings do not override it.
	DefaultEndpointDomain = "r2.cloudflarestorage.com"

	connectTimeout = 15 * time.Second
	listTimeout    = 15 * time.Second
)

// R2Store talks to an S3-compatible, account-scoped endpoint such as
// Cloudflare R2. The endpoint is https://{account_id}.{domain} and requests
// are signed with the stored key pair. The underlying client is built lazily
// and rebuilt whenever the credential store reports a new version.
type R2Store struct {
	creds  *vbt.CredentialStore
	domain string
	logger vbt.Logger

	mu       sync.Mutex
	client   *s3.Client
	uploader *manager.Uploader
	endpoint string
	built    uint64
}

// NewR2Store creates a store bound to the given credential store. An empty
// domain selects DefaultEndpointDomain.
func NewR2Store(creds *vbt.CredentialStore, domain string, logger vbt.Logger) *R2Store {
	if domain == "" {
		domain = DefaultEndpointDomain
	}
	return &R2Store{creds: creds, domain: domain, logger: logger}
}

// getClient returns a client built for the current credentials, reusing the
// cached one while the credential version is unchanged.
func (r *R2Store) getClient(ctx context.Context) (*s3.Client, *manager.Uploader, vbt.CredentialSet, error) {
	set, version := r.creds.Snapshot()
	if field := set.MissingEndpointField(); field != "" {
		return nil, nil, set, &vbt.ConfigurationError{Field: field}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil && r.built == version {
		return r.client, r.uploader, set, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(set.AccessKeyID, set.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, nil, set, fmt.Errorf("loading client config: %w", err)
	}

	r.endpoint = fmt.Sprintf("https://%s.%s", set.AccountID, r.domain)
	r.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(r.endpoint)
		o.UsePathStyle = true
	})
	r.uploader = manager.NewUploader(r.client)
	r.built = version
	r.logger.Debug("storage client built", "endpoint", r.endpoint)
	return r.client, r.uploader, set, nil
}

// TestConnection checks that the configured bucket is reachable with the
// current credentials.
func (r *R2Store) TestConnection(ctx context.Context) error {
	client, _, set, err := r.getClient(ctx)
	if err != nil {
		return err
	}
	if field := set.MissingField(); field != "" {
		return &vbt.ConfigurationError{Field: field}
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(set.Bucket)}); err != nil {
		return &vbt.ConnectivityError{Op: "head bucket", Err: err}
	}
	return nil
}

// ListBuckets returns the bucket names visible to the current credentials.
// An empty list is a successful answer, distinct from an auth failure. A
// selected bucket is not required.
func (r *R2Store) ListBuckets(ctx context.Context) ([]string, error) {
	client, _, _, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, &vbt.ConnectivityError{Op: "list buckets", Err: err}
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

// PutObject uploads the archive under key. The transfer manager splits large
// bodies into multipart uploads.
func (r *R2Store) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, uploader, set, err := r.getClient(ctx)
	if err != nil {
		return err
	}
	if field := set.MissingField(); field != "" {
		return &vbt.ConfigurationError{Field: field}
	}

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(set.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return &vbt.UploadError{Key: key, Err: err}
	}
	r.logger.Info("archive uploaded", "key", key, "bytes", size)
	return nil
}

// Compile-time check that R2Store implements vbt.ObjectStore.
var _ vbt.ObjectStore = (*R2Store)(nil)
