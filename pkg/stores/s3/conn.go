/*
Package s3 persists engine snapshots to S3-compatible object storage, so a
memory store can be backed up and restored across environments.
*/
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

/*
Conn wraps a minio client for one S3-compatible endpoint.
*/
type Conn struct {
	client *minio.Client
}

/*
ConnOption configures a Conn during construction.
*/
type ConnOption func(*connConfig)

type connConfig struct {
	endpoint  string
	accessKey string
	secretKey string
	useSSL    bool
}

func WithEndpoint(endpoint string) ConnOption {
	return func(cfg *connConfig) { cfg.endpoint = endpoint }
}

func WithCredentials(accessKey, secretKey string) ConnOption {
	return func(cfg *connConfig) {
		cfg.accessKey = accessKey
		cfg.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) ConnOption {
	return func(cfg *connConfig) { cfg.useSSL = useSSL }
}

/*
NewConn creates a connection to an S3-compatible endpoint.
*/
func NewConn(opts ...ConnOption) (*Conn, error) {
	cfg := &connConfig{endpoint: "localhost:9000"}

	for _, opt := range opts {
		opt(cfg)
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &Conn{client: client}, nil
}

/*
EnsureBucket creates the bucket if it does not already exist.
*/
func (conn *Conn) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := conn.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return conn.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

/*
Put writes an object.
*/
func (conn *Conn) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := conn.client.PutObject(
		ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	return err
}

/*
Get reads an object fully into memory.
*/
func (conn *Conn) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

/*
List returns the keys under a prefix.
*/
func (conn *Conn) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	for info := range conn.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, info.Key)
	}

	return keys, nil
}
