package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gocache "github.com/patrickmn/go-cache"
)

// S3Config holds explicit construction parameters (mostly for tests). For
// prod we rely primarily on environment variables.
type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string // key prefix holding one folder per version
	Endpoint        string // optional; enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
	CacheDir        string // local directory for downloaded versions
}

// s3API is the S3 client surface S3Source depends on; narrowed for mocks.
type s3API interface {
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves versioned datasets from an S3-compatible bucket, one key
// prefix per version. Version files are downloaded into a local cache
// directory once and opened from there; listings and open handles are held
// in a short-TTL process cache since the bucket is read-mostly.
type S3Source struct {
	client   s3API
	bucket   string
	prefix   string
	cacheDir string
	cache    *gocache.Cache
}

const (
	s3CacheTTL          = 5 * time.Minute
	versionListCacheKey = "versions"
)

// NewS3Source creates an S3 dataset source from config.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Source(client, cfg), nil
}

func newS3Source(client s3API, cfg S3Config) *S3Source {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "craftplan-datasets")
	}
	return &S3Source{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.TrimSuffix(cfg.Prefix, "/"),
		cacheDir: cacheDir,
		cache:    gocache.New(s3CacheTTL, 2*s3CacheTTL),
	}
}

// OpenS3SourceFromEnv constructs an S3 source from process environment.
//
//	CRAFTPLAN_S3_BUCKET=<bucket> (required)
//	CRAFTPLAN_S3_REGION=<region> (default us-east-1)
//	CRAFTPLAN_S3_PREFIX=<key prefix> (optional)
//	CRAFTPLAN_S3_ENDPOINT=<url> (optional, for MinIO)
//	CRAFTPLAN_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func OpenS3SourceFromEnv(ctx context.Context) (*S3Source, error) {
	bucket := os.Getenv("CRAFTPLAN_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("CRAFTPLAN_S3_BUCKET required for s3 data source")
	}
	return NewS3Source(ctx, S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("CRAFTPLAN_S3_REGION"),
		Prefix:    os.Getenv("CRAFTPLAN_S3_PREFIX"),
		Endpoint:  os.Getenv("CRAFTPLAN_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("CRAFTPLAN_S3_PATH_STYLE"), "true"),
	})
}

func (s *S3Source) versionPrefix(version string) string {
	if s.prefix == "" {
		return version + "/"
	}
	return s.prefix + "/" + version + "/"
}

// ListVersions lists one version per top-level folder under the prefix.
func (s *S3Source) ListVersions(ctx context.Context) ([]string, error) {
	if cached, ok := s.cache.Get(versionListCacheKey); ok {
		return cached.([]string), nil
	}
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}
	var versions []string
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, listPrefix), "/")
			if name != "" {
				versions = append(versions, name)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	sort.Strings(versions)
	s.cache.Set(versionListCacheKey, versions, gocache.DefaultExpiration)
	return versions, nil
}

// OpenDataset downloads the version's files into the local cache directory
// on first use and opens the dataset from there.
func (s *S3Source) OpenDataset(ctx context.Context, version string) (*Dataset, error) {
	if cached, ok := s.cache.Get("dataset:" + version); ok {
		return cached.(*Dataset), nil
	}
	dir := filepath.Join(s.cacheDir, version)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dataset cache dir: %w", err)
	}
	files := append([]string{}, requiredFiles...)
	files = append(files, FileMachineIndex)
	for _, name := range files {
		if err := s.download(ctx, version, name, filepath.Join(dir, name)); err != nil {
			if name == FileMachineIndex {
				continue // optional
			}
			return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
		}
	}
	d, err := Open(dir, version)
	if err != nil {
		return nil, err
	}
	s.cache.Set("dataset:"+version, d, gocache.DefaultExpiration)
	return d, nil
}

func (s *S3Source) download(ctx context.Context, version, name, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	key := s.versionPrefix(version) + name
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
