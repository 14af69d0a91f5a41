package util

import (
	"io"

	"github.com/hashicorp/go-multierror"
)

// DumpAndCloseStream writes the whole of r to w and closes r regardless of
// the copy outcome. A close failure never masks a copy failure.
func DumpAndCloseStream(w io.Writer, r io.ReadCloser) (int64, error) {
	n, copyErr := io.Copy(w, r)
	closeErr := r.Close()
	if copyErr != nil {
		if closeErr != nil {
			return n, multierror.Append(copyErr, closeErr)
		}
		return n, copyErr
	}
	return n, closeErr
}
