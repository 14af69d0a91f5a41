package filecache

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

type ChecksumResult int

const (
	// ChecksumMatch means the computed hash equals the expected value.
	ChecksumMatch ChecksumResult = iota
	// ChecksumMismatch means the object's content does not match what the
	// provider declared. The caller decides severity; the cache only reports.
	ChecksumMismatch
	// ChecksumAbsent means no expected value was declared, so nothing was
	// computed or compared.
	ChecksumAbsent
)

func (r ChecksumResult) String() string {
	switch r {
	case ChecksumMatch:
		return "match"
	case ChecksumMismatch:
		return "mismatch"
	case ChecksumAbsent:
		return "absent"
	}
	return "unknown"
}

// Verify compares the file's content hash to the expected checksum carried in
// the object's metadata. The hash is only computed when an expectation
// exists, and is memoized for repeat calls.
func (f *DownloadedFile) Verify() (ChecksumResult, error) {
	if f.ExpectedChecksum == "" {
		return ChecksumAbsent, nil
	}
	actual, err := f.contentChecksum()
	if err != nil {
		return ChecksumMismatch, err
	}
	if actual != f.ExpectedChecksum {
		return ChecksumMismatch, nil
	}
	return ChecksumMatch, nil
}

func (f *DownloadedFile) contentChecksum() (string, error) {
	f.checksumMu.Lock()
	defer f.checksumMu.Unlock()
	if f.checksum != "" {
		return f.checksum, nil
	}

	handle, err := os.Open(f.Path)
	if err != nil {
		return "", errors.Wrapf(err, "error opening cached copy of %s", f.Key)
	}
	defer handle.Close()

	hasher := md5.New()
	if _, err = io.Copy(hasher, handle); err != nil {
		return "", errors.Wrapf(err, "error hashing cached copy of %s", f.Key)
	}
	f.checksum = hex.EncodeToString(hasher.Sum(nil))
	return f.checksum, nil
}
