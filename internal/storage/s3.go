// Package storage persists vectorized results to S3 and mints time-limited
// signed retrieval URLs for them.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vectorizer/internal/domain"
)

const (
	// KeyPrefix is the fixed prefix every stored result lives under.
	KeyPrefix = "vectorized/"
	// URLExpiry is the lifetime of every signed URL minted here.
	URLExpiry = time.Hour
)

// s3API is the minimal S3 interface required by Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presignAPI is satisfied by *s3.PresignClient.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store writes SVG objects into a single bucket.
type Store struct {
	api     s3API
	presign presignAPI
	bucket  string
}

// New creates a Store. An empty bucket is accepted so the service can start
// without storage; every call then fails with ErrBucketNotSet.
func New(api s3API, presign presignAPI, bucket string) (*Store, error) {
	if api == nil {
		return nil, errors.New("storage: s3 api must not be nil")
	}
	if presign == nil {
		return nil, errors.New("storage: presign api must not be nil")
	}
	return &Store{api: api, presign: presign, bucket: strings.TrimSpace(bucket)}, nil
}

// NewFromClient wires a Store to a real S3 client.
func NewFromClient(client *s3.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.New("storage: s3 client must not be nil")
	}
	return New(client, s3.NewPresignClient(client), bucket)
}

// ErrBucketNotSet is returned when no bucket is configured.
var ErrBucketNotSet = errors.New("storage: bucket name not set")

// Ready reports whether the store has a bucket to write to.
func (s *Store) Ready() error {
	if s.bucket == "" {
		return ErrBucketNotSet
	}
	return nil
}

// Key returns the full object key for name.
func Key(name string) string {
	return KeyPrefix + strings.TrimPrefix(name, KeyPrefix)
}

// Put writes data under KeyPrefix+name with an SVG content type and returns
// a signed URL for it.
func (s *Store) Put(ctx context.Context, name string, data []byte) (key, url string, err error) {
	if s.bucket == "" {
		return "", "", ErrBucketNotSet
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.New("storage: object name is required")
	}
	key = Key(name)

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(domain.SVGContentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("storage: put object %q: %w", key, err)
	}

	url, err = s.SignedURL(ctx, key)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// SignedURL mints a GET URL for key that expires after URLExpiry.
func (s *Store) SignedURL(ctx context.Context, key string) (string, error) {
	if s.bucket == "" {
		return "", ErrBucketNotSet
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", fmt.Errorf("storage: key %q is outside %s", key, KeyPrefix)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(URLExpiry))
	if err != nil {
		return "", fmt.Errorf("storage: presign %q: %w", key, err)
	}
	if req == nil || req.URL == "" {
		return "", fmt.Errorf("storage: presign %q: empty url", key)
	}
	return req.URL, nil
}
