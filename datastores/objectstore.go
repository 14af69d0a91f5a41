package datastores

import (
	"io"

	"github.com/carebridge/claims-pipeline/common/pcontext"
)

// ChecksumMetadataField is the object metadata field the upstream provider
// sets to the hex MD5 of the object's content. Absence means no verification
// was requested, not a failure.
const ChecksumMetadataField = "md5chksum"

type ObjectInfo struct {
	Key              string
	SizeBytes        int64
	ExpectedChecksum string // empty when the metadata field is absent
}

// ObjectStore is the capability surface the pipeline needs from the bucket.
// All pipeline code goes through this interface so tests can substitute an
// in-memory store.
type ObjectStore interface {
	ListKeys(ctx pcontext.PipelineContext, prefix string) ([]string, error)
	Head(ctx pcontext.PipelineContext, key string) (ObjectInfo, error)
	Fetch(ctx pcontext.PipelineContext, key string) (io.ReadCloser, ObjectInfo, error)
	Put(ctx pcontext.PipelineContext, key string, r io.Reader, size int64, checksum string) error
	Move(ctx pcontext.PipelineContext, src string, dst string) error
	Exists(ctx pcontext.PipelineContext, key string) (bool, error)
}
