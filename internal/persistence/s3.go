package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Bridge.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Bridge stores each collection as the object <prefix>/<collection>.json.
type S3Bridge struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Bridge creates a bridge writing into bucket under prefix.
func NewS3Bridge(client S3API, bucket, prefix string) *S3Bridge {
	if client == nil {
		panic("persistence: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("persistence: s3 bucket cannot be empty")
	}
	return &S3Bridge{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Bridge) key(collection string) string {
	return path.Join(b.prefix, "collections", collection+".json")
}

// Load downloads the collection object; NoSuchKey means absent.
func (b *S3Bridge) Load(ctx context.Context, collection string) ([]json.RawMessage, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(collection)),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("persistence: s3 get %s: %w", collection, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("persistence: s3 read %s: %w", collection, err)
	}
	records, err := DecodeDocument(data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Save uploads the collection document.
func (b *S3Bridge) Save(ctx context.Context, collection string, records []json.RawMessage) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	data, err := EncodeDocument(records)
	if err != nil {
		return err
	}
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(collection)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("persistence: s3 put %s: %w", collection, err)
	}
	return nil
}

var _ Bridge = (*S3Bridge)(nil)
