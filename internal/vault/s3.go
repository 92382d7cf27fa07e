package vault

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dupenukem/internal/config"
	"dupenukem/internal/dupe"
)

// S3Vault stores backups in an S3 (or compatible) bucket under
// <prefix>/<stamp>/<relpath> keys. The engine's I/O model is blocking
// with no cancellation, so all calls run under the background context.
type S3Vault struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Vault builds an S3-backed vault from config. Static credentials
// are used when provided, otherwise the default AWS credential chain.
func NewS3Vault(cfg config.BackupConfig) (*S3Vault, error) {
	ctx := context.Background()

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.S3Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.S3ForcePathStyle
	})

	return &S3Vault{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   strings.Trim(cfg.S3Prefix, "/"),
	}, nil
}

func (v *S3Vault) key(stamp, relPath string) string {
	key := stamp + "/" + relPath
	if v.prefix != "" {
		key = v.prefix + "/" + key
	}
	return key
}

// Put uploads one object. The upload manager handles multipart
// splitting for large files; size is not needed.
func (v *S3Vault) Put(stamp, relPath string, r io.Reader, size int64) error {
	key := v.key(stamp, relPath)
	_, err := v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", v.bucket, key, err)
	}
	return nil
}

func (v *S3Vault) Get(stamp, relPath string, w io.Writer) error {
	key := v.key(stamp, relPath)
	res, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s/%s: %w", v.bucket, key, err)
	}
	defer res.Body.Close()

	if _, err := io.Copy(w, res.Body); err != nil {
		return fmt.Errorf("read object %s/%s: %w", v.bucket, key, err)
	}
	return nil
}

func (v *S3Vault) List(stamp string) ([]string, error) {
	prefix := v.key(stamp, "")
	keys, err := v.listKeys(prefix, "")
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		paths = append(paths, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(paths)
	return paths, nil
}

func (v *S3Vault) Stamps() ([]string, error) {
	prefix := ""
	if v.prefix != "" {
		prefix = v.prefix + "/"
	}
	dirs, err := v.listCommonPrefixes(prefix)
	if err != nil {
		return nil, err
	}
	stamps := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = strings.TrimPrefix(d, prefix)
		stamps = append(stamps, strings.TrimSuffix(d, "/"))
	}
	sort.Strings(stamps)
	return stamps, nil
}

// ValidateSetup verifies the bucket is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) listKeys(prefix, delimiter string) ([]string, error) {
	ctx := context.Background()
	var keys []string
	var continuation *string
	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(v.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		}
		if delimiter != "" {
			input.Delimiter = aws.String(delimiter)
		}
		resp, err := v.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", v.bucket, err)
		}
		for _, obj := range resp.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return keys, nil
}

func (v *S3Vault) listCommonPrefixes(prefix string) ([]string, error) {
	ctx := context.Background()
	var dirs []string
	var continuation *string
	for {
		resp, err := v.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(v.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", v.bucket, err)
		}
		for _, cp := range resp.CommonPrefixes {
			if cp.Prefix != nil {
				dirs = append(dirs, *cp.Prefix)
			}
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return dirs, nil
}

func normalizeEndpoint(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		return host
	}
	u := url.URL{Scheme: "https", Host: host}
	return u.String()
}

var _ dupe.Vault = (*S3Vault)(nil)
