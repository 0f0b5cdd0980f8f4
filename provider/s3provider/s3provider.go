// Package s3provider implements the storage provider contract on AWS
// S3 and S3-compatible services (MinIO, Cloudflare R2).
package s3provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/types"
)

// BackendName is the registry name of this backend.
const BackendName = "s3"

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
	// AccessKeyID and SecretAccessKey select static credentials. Empty
	// uses the AWS SDK default chain (env vars, shared config, IAM role).
	AccessKeyID     string
	SecretAccessKey string
	// QuotaBytes is an optional soft capacity used in usage reports.
	// Zero means unbounded.
	QuotaBytes int64
}

// Validate checks that required S3 configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 backend requires a bucket")
	}
	return nil
}

// Provider stores objects in an S3 bucket.
type Provider struct {
	config   Config
	client   *s3.Client
	uploader *manager.Uploader
}

// New creates an S3 backend from the given config. Credentials come
// from the static pair when set, otherwise the SDK default chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return &Provider{
		config:   cfg,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// Name returns the registry name.
func (p *Provider) Name() string { return BackendName }

// objectKey prepends the configured prefix to a remote path.
func (p *Provider) objectKey(remotePath string) string {
	if p.config.Prefix == "" {
		return remotePath
	}
	return path.Join(p.config.Prefix, remotePath)
}

// Upload streams the local file to the bucket through the multipart
// upload manager. The etag is whatever the backend assigned.
func (p *Provider) Upload(ctx context.Context, localPath, remotePath string, opts provider.UploadOptions) types.ObjectResult {
	start := time.Now()
	fail := func(size int64, err error) types.ObjectResult {
		return types.ObjectResult{
			RemotePath: remotePath,
			SizeBytes:  size,
			Duration:   time.Since(start),
			Message:    err.Error(),
		}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fail(0, fmt.Errorf("open source: %w", err))
	}
	defer iox.DiscardClose(src)

	info, err := src.Stat()
	if err != nil {
		return fail(0, fmt.Errorf("stat source: %w", err))
	}
	size := info.Size()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = provider.ContentTypeFor(localPath)
	}

	out, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(p.objectKey(remotePath)),
		Body:        src,
		ContentType: aws.String(contentType),
		Metadata:    opts.Metadata,
	})
	if err != nil {
		return fail(size, fmt.Errorf("s3 upload: %w", err))
	}

	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       etag,
		SizeBytes:  size,
		Duration:   time.Since(start),
		Message:    "stored",
		Metadata:   map[string]string{"contentType": contentType},
	}
}

// Download streams the object to localPath via temp-and-rename.
func (p *Provider) Download(ctx context.Context, remotePath, localPath string) types.ObjectResult {
	start := time.Now()
	fail := func(size int64, err error) types.ObjectResult {
		return types.ObjectResult{
			RemotePath: remotePath,
			SizeBytes:  size,
			Duration:   time.Since(start),
			Message:    err.Error(),
		}
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.objectKey(remotePath)),
	})
	if err != nil {
		return fail(0, fmt.Errorf("s3 download: %w", err))
	}
	defer iox.DiscardClose(out.Body)

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp-*")
	if err != nil {
		return fail(0, fmt.Errorf("create temp output: %w", err))
	}
	tmpPath := tmp.Name()

	size, err := copyCtx(ctx, tmp, out.Body)
	if err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("copy object: %w", err))
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("close output: %w", err))
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("commit output: %w", err))
	}

	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       etag,
		SizeBytes:  size,
		Duration:   time.Since(start),
		Message:    "downloaded",
	}
}

// Exists reports object presence via HeadObject. A not-found response
// is (false, nil).
func (p *Provider) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.objectKey(remotePath)),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head: %w", err)
	}
	return true, nil
}

// Delete removes the object. S3 DeleteObject is idempotent by
// contract: deleting a non-existent key succeeds.
func (p *Provider) Delete(ctx context.Context, remotePath string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.objectKey(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

// Healthy reports bucket reachability via HeadBucket. Never returns an
// error.
func (p *Provider) Healthy(ctx context.Context) bool {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.config.Bucket),
	})
	return err == nil
}

// Usage paginates ListObjectsV2 under the configured prefix and sums
// object sizes.
func (p *Provider) Usage(ctx context.Context) (types.UsageInfo, error) {
	var used, count int64

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(p.config.Bucket),
	}
	if p.config.Prefix != "" {
		input.Prefix = aws.String(p.config.Prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(p.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return types.UsageInfo{}, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Size != nil {
				used += *obj.Size
			}
			count++
		}
	}

	info := types.UsageInfo{
		UsedSpaceBytes: used,
		FileCount:      count,
		LastUpdated:    time.Now().UTC(),
	}
	if p.config.QuotaBytes > 0 {
		info.TotalSpaceBytes = p.config.QuotaBytes
		if avail := p.config.QuotaBytes - used; avail > 0 {
			info.AvailableSpaceBytes = avail
		}
	}
	return info, nil
}

// copyCtx copies src to dst in bounded chunks, honoring cancellation
// between chunks. Returns the bytes written, also on failure.
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
