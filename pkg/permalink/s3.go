package permalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from the standard AWS environment
// variables. A non-empty endpoint selects an S3-compatible service and
// path-style addressing.
func NewS3Client(region, endpoint string) *s3.Client {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
					SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
					SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
					Source:          "Environment",
				}, nil
			})),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// S3Store keeps each link as a JSON object under prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// NewS3Store returns a store writing to bucket.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, search string) (Link, error) {
	link := newLink(search)
	data, err := json.Marshal(link)
	if err != nil {
		return Link{}, storeError("encode link", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(link.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return Link{}, storeError("put object", err)
	}
	return link, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, id string) (Link, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return Link{}, ErrNotFound
	}
	if err != nil {
		return Link{}, storeError("get object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, 64*1024))
	if err != nil {
		return Link{}, storeError("read object", err)
	}
	var link Link
	if err := json.Unmarshal(data, &link); err != nil {
		return Link{}, storeError("decode link", err)
	}
	return link, nil
}

// Close implements Store.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) key(id string) string {
	return s.prefix + id + ".json"
}
