package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Client mirrors generated media (page images and crops) to an S3 bucket
// and fetches source PDFs stored there.
type S3Client struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Client creates a new S3 client using the default AWS credential chain.
func NewS3Client(ctx context.Context, bucket, prefix string) (*S3Client, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Client{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *S3Client) key(parts ...string) string {
	all := append([]string{s.prefix}, parts...)
	return strings.Trim(strings.Join(all, "/"), "/")
}

// UploadFile uploads a single object.
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// MirrorJobDir uploads every PNG in a job's output directory under
// {prefix}/pdf-pages/{jobID}/. Returns the number of files uploaded.
func (s *S3Client) MirrorJobDir(ctx context.Context, jobID, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read job dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	uploaded := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return uploaded, fmt.Errorf("read %s: %w", name, err)
		}
		key := s.key("pdf-pages", jobID, name)
		if err := s.UploadFile(ctx, key, data, "image/png"); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	log.Info().Str("job_id", jobID).Int("files", uploaded).Str("bucket", s.bucket).Msg("mirrored job media to S3")
	return uploaded, nil
}

// DownloadToFile fetches an object into a local file. Used for source PDFs
// referenced by S3 key instead of uploaded directly.
func (s *S3Client) DownloadToFile(ctx context.Context, key, dst string) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (s *S3Client) Bucket() string { return s.bucket }
