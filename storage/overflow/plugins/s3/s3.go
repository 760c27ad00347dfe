// Package s3 stores blobs as objects in an S3 compatible bucket.
// Every blob gets a fresh object name so references are never shared.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"

	"github.com/jrife/tenantkv/storage/overflow"
	"github.com/jrife/tenantkv/utils/uuid"
	"github.com/minio/minio-go"
)

// DriverName is the name under which the plugin is registered
const DriverName = "s3"

// Plugins lists the plugins provided by this package
func Plugins() []overflow.Plugin {
	return []overflow.Plugin{&S3Plugin{}}
}

// S3Plugin creates S3 content stores
type S3Plugin struct {
}

// Name implements overflow.Plugin.Name
func (plugin *S3Plugin) Name() string {
	return DriverName
}

// NewStore implements overflow.Plugin.NewStore
func (plugin *S3Plugin) NewStore(options overflow.Options) (overflow.Store, error) {
	return New(options)
}

var _ overflow.Store = (*S3Store)(nil)
var _ overflow.UniqueReferences = (*S3Store)(nil)

// S3Store implements overflow.Store on an S3 bucket
type S3Store struct {
	client *minio.Client
	bucket string
}

// New creates an S3Store for options.Bucket at options.Endpoint
func New(options overflow.Options) (*S3Store, error) {
	if options.Endpoint == "" || options.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}

	client, err := minio.New(options.Endpoint, options.AccessKey, options.SecretKey, options.Secure)

	if err != nil {
		return nil, fmt.Errorf("could not create s3 client: %s", err)
	}

	return &S3Store{client: client, bucket: options.Bucket}, nil
}

// Add implements overflow.Store.Add
func (store *S3Store) Add(ctx context.Context, data []byte) (string, error) {
	reference := uuid.MustUUID()

	_, err := store.client.PutObjectWithContext(ctx, store.bucket, reference, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: "application/octet-stream"})

	if err != nil {
		return "", wrapError(err)
	}

	return reference, nil
}

// Get implements overflow.Store.Get
func (store *S3Store) Get(ctx context.Context, reference string) ([]byte, error) {
	object, err := store.client.GetObjectWithContext(ctx, store.bucket, reference, minio.GetObjectOptions{})

	if err != nil {
		return nil, wrapError(err)
	}

	defer object.Close()

	data, err := ioutil.ReadAll(object)

	if err != nil {
		return nil, wrapError(err)
	}

	return data, nil
}

// Delete implements overflow.Store.Delete. Removing an object that
// doesn't exist succeeds.
func (store *S3Store) Delete(ctx context.Context, reference string) error {
	return wrapError(store.client.RemoveObject(store.bucket, reference))
}

// UniqueReferences implements overflow.UniqueReferences.UniqueReferences.
// Every Add writes a new object name.
func (store *S3Store) UniqueReferences() bool {
	return true
}

// Close implements overflow.Store.Close
func (store *S3Store) Close() error {
	return nil
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return fmt.Errorf("%w: %s", overflow.ErrNotFound, err)
	}

	return fmt.Errorf("%w: %s", overflow.ErrUnavailable, err)
}
