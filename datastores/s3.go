package datastores

import (
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/metrics"
)

type s3Store struct {
	client *minio.Client
	bucket string
}

// NewS3ObjectStore connects to the configured S3-compatible endpoint. The
// bucket must already exist - the pipeline never creates it.
func NewS3ObjectStore(c config.ObjectStoreConfig) (ObjectStore, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Region: c.Region,
		Secure: c.Ssl,
		Creds:  credentials.NewStaticV4(c.AccessKeyId, c.AccessSecret, ""),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating s3 client")
	}
	return &s3Store{client: client, bucket: c.Bucket}, nil
}

func (s *s3Store) ListKeys(ctx pcontext.PipelineContext, prefix string) ([]string, error) {
	metrics.ObjectStoreOperations.With(map[string]string{"operation": "list"}).Inc()
	keys := make([]string, 0)
	objects := s.client.ListObjects(ctx.Context, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix + "/",
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, "error listing %s", prefix)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *s3Store) Head(ctx pcontext.PipelineContext, key string) (ObjectInfo, error) {
	metrics.ObjectStoreOperations.With(map[string]string{"operation": "head"}).Inc()
	stat, err := s.client.StatObject(ctx.Context, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "error checking %s", key)
	}
	return infoFromStat(key, stat), nil
}

func (s *s3Store) Fetch(ctx pcontext.PipelineContext, key string) (io.ReadCloser, ObjectInfo, error) {
	metrics.ObjectStoreOperations.With(map[string]string{"operation": "fetch"}).Inc()
	obj, err := s.client.GetObject(ctx.Context, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, errors.Wrapf(err, "error fetching %s", key)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, errors.Wrapf(err, "error fetching %s", key)
	}
	return obj, infoFromStat(key, stat), nil
}

func (s *s3Store) Put(ctx pcontext.PipelineContext, key string, r io.Reader, size int64, checksum string) error {
	metrics.ObjectStoreOperations.With(map[string]string{"operation": "put"}).Inc()
	opts := minio.PutObjectOptions{}
	if checksum != "" {
		opts.UserMetadata = map[string]string{ChecksumMetadataField: checksum}
	}
	_, err := s.client.PutObject(ctx.Context, s.bucket, key, r, size, opts)
	if err != nil {
		return errors.Wrapf(err, "error uploading %s", key)
	}
	return nil
}

// Move relocates an object with a server-side copy then a delete. Not atomic
// over both objects: a crash between the two leaves the source in place,
// which re-discovery tolerates because the destination record is already
// terminal.
func (s *s3Store) Move(ctx pcontext.PipelineContext, src string, dst string) error {
	metrics.ObjectStoreOperations.With(map[string]string{"operation": "move"}).Inc()
	_, err := s.client.CopyObject(ctx.Context, minio.CopyDestOptions{
		Bucket: s.bucket,
		Object: dst,
	}, minio.CopySrcOptions{
		Bucket: s.bucket,
		Object: src,
	})
	if err != nil {
		return errors.Wrapf(err, "error copying %s to %s", src, dst)
	}
	if err = s.client.RemoveObject(ctx.Context, s.bucket, src, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "error removing %s after copy", src)
	}
	return nil
}

func (s *s3Store) Exists(ctx pcontext.PipelineContext, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if err != nil {
		original := errors.Cause(err)
		if resp, ok := original.(minio.ErrorResponse); ok && resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func infoFromStat(key string, stat minio.ObjectInfo) ObjectInfo {
	checksum := ""
	for name, val := range stat.UserMetadata {
		if strings.EqualFold(name, ChecksumMetadataField) {
			checksum = val
			break
		}
	}
	return ObjectInfo{
		Key:              key,
		SizeBytes:        stat.Size,
		ExpectedChecksum: checksum,
	}
}
