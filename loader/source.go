package loader

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/filecache"
	"github.com/carebridge/claims-pipeline/manifest"
)

// RecordStream is a numbered record channel plus the terminal error, if any.
// Err is only meaningful after C closes.
type RecordStream struct {
	C <-chan Record

	mu  sync.Mutex
	err error
}

func (s *RecordStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *RecordStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// LineRecordSource parses pipe-delimited data files into numbered records:
// a header line, then one record per line with the change indicator in the
// first field and the record key in the second. The richer business mapping
// happens upstream; this source carries the whole line as the payload.
type LineRecordSource struct {
	// IdentifierFields are zero-based field positions whose values must be
	// hashed alongside the record.
	IdentifierFields []int

	// BufferSize is the channel capacity; the pipeline's prefetch window is
	// the real backpressure, so this only smooths parsing.
	BufferSize int
}

// Stream reads a cached file and emits its records in order. A malformed
// line stops the stream; the caller checks Err after draining.
func (s *LineRecordSource) Stream(ctx pcontext.PipelineContext, f *filecache.DownloadedFile, fileType manifest.FileType) *RecordStream {
	bufferSize := s.BufferSize
	if bufferSize < 1 {
		bufferSize = 64
	}
	ch := make(chan Record, bufferSize)
	stream := &RecordStream{C: ch}

	go func() {
		defer close(ch)

		handle, err := os.Open(f.Path)
		if err != nil {
			stream.fail(errors.Wrapf(err, "error opening %s", f.Key))
			return
		}
		defer handle.Close()

		scanner := bufio.NewScanner(handle)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		number := int64(0)
		header := true
		for scanner.Scan() {
			line := scanner.Text()
			if header {
				header = false
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			number++

			fields := strings.Split(line, "|")
			if len(fields) < 2 {
				stream.fail(errors.Errorf("%s line %d: expected at least 2 fields, got %d", f.Key, number, len(fields)))
				return
			}

			var action RecordAction
			switch fields[0] {
			case "INSERT":
				action = RecordActionInsert
			case "UPDATE":
				action = RecordActionUpdate
			default:
				stream.fail(errors.Errorf("%s line %d: unknown change indicator %q", f.Key, number, fields[0]))
				return
			}

			var identifiers []string
			for _, idx := range s.IdentifierFields {
				if idx < len(fields) && fields[idx] != "" {
					identifiers = append(identifiers, fields[idx])
				}
			}

			rec := Record{
				Number:      number,
				Action:      action,
				Key:         string(fileType) + ":" + fields[1],
				FileType:    fileType,
				Payload:     line,
				Identifiers: identifiers,
			}
			select {
			case ch <- rec:
			case <-ctx.Done():
				stream.fail(ctx.Err())
				return
			}
		}
		if err := scanner.Err(); err != nil {
			stream.fail(errors.Wrapf(err, "error reading %s", f.Key))
		}
	}()

	return stream
}
