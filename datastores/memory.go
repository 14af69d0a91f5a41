package datastores

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
)

// ErrObjectNotFound is returned by the in-memory store for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

type memoryObject struct {
	data     []byte
	checksum string
}

// MemoryObjectStore is an in-memory ObjectStore used by tests and local
// development. It also counts fetches per key so tests can assert on
// download behavior.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	fetches map[string]int
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		objects: make(map[string]memoryObject),
		fetches: make(map[string]int),
	}
}

func (s *MemoryObjectStore) ListKeys(_ pcontext.PipelineContext, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for k := range s.objects {
		if strings.HasPrefix(k, prefix+"/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryObjectStore) Head(_ pcontext.PipelineContext, key string) (ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return ObjectInfo{}, errors.Wrap(ErrObjectNotFound, key)
	}
	return ObjectInfo{Key: key, SizeBytes: int64(len(obj.data)), ExpectedChecksum: obj.checksum}, nil
}

func (s *MemoryObjectStore) Fetch(ctx pcontext.PipelineContext, key string) (io.ReadCloser, ObjectInfo, error) {
	s.mu.Lock()
	obj, ok := s.objects[key]
	if ok {
		s.fetches[key]++
	}
	s.mu.Unlock()
	if !ok {
		return nil, ObjectInfo{}, errors.Wrap(ErrObjectNotFound, key)
	}
	info := ObjectInfo{Key: key, SizeBytes: int64(len(obj.data)), ExpectedChecksum: obj.checksum}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (s *MemoryObjectStore) Put(_ pcontext.PipelineContext, key string, r io.Reader, _ int64, checksum string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: data, checksum: checksum}
	return nil
}

func (s *MemoryObjectStore) Move(_ pcontext.PipelineContext, src string, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[src]
	if !ok {
		return errors.Wrap(ErrObjectNotFound, src)
	}
	s.objects[dst] = obj
	delete(s.objects, src)
	return nil
}

func (s *MemoryObjectStore) Exists(_ pcontext.PipelineContext, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// FetchCount reports how many times a key has been fetched.
func (s *MemoryObjectStore) FetchCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[key]
}
