package syncdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3StoreConfig configures the S3 document store.
type S3StoreConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // for S3-compatible services (MinIO, etc.)

	// AccessKeyID and SecretAccessKey authenticate explicitly. Prefer IAM
	// roles or the AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY environment;
	// never commit credentials to source control.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// UsePathStyle selects path-style addressing.
	UsePathStyle bool `yaml:"use_path_style"`

	// Compress enables snappy compression of record payloads.
	Compress bool `yaml:"compress"`

	// Encryption optionally encrypts record payloads before upload.
	Encryption *EncryptionConfig `yaml:"encryption"`
}

// S3Store persists document records as objects in an S3 or S3-compatible
// bucket, one object per document id.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	codec  recordCodec
}

// NewS3Store builds an S3-backed store from cfg.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	s := &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}
	if cfg.Compress {
		s.codec.compress = true
	}
	if cfg.Encryption != nil && cfg.Encryption.Enabled {
		enc, err := NewEncryptor(*cfg.Encryption)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		s.codec.encryptor = enc
	}
	return s, nil
}

func (s *S3Store) key(documentID string) string {
	return s.prefix + documentID + recordFileExt
}

// Save uploads the record for rec.DocumentID.
func (s *S3Store) Save(ctx context.Context, rec *PersistenceRecord) error {
	data, err := s.codec.encode(rec)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rec.DocumentID)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 save record: %w", err)
	}
	return nil
}

// Load downloads the record for documentID.
func (s *S3Store) Load(ctx context.Context, documentID string) (*PersistenceRecord, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(documentID)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("s3 load record: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 load record: %w", err)
	}
	return s.codec.decode(data)
}

// Delete removes the record object for documentID.
func (s *S3Store) Delete(ctx context.Context, documentID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(documentID)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete record: %w", err)
	}
	return nil
}

// List returns document ids for every record object under the prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list records: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, recordFileExt) {
				continue
			}
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), recordFileExt))
		}
	}
	return ids, nil
}

// Close is a no-op; the underlying HTTP client is shared.
func (s *S3Store) Close() error { return nil }
