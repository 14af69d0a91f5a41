package hasher

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
)

type fakeHashStore struct {
	mu     sync.Mutex
	hashes map[string]string
	gets   int32
}

func newFakeHashStore() *fakeHashStore {
	return &fakeHashStore{hashes: make(map[string]string)}
}

func (s *fakeHashStore) GetHash(_ pcontext.PipelineContext, identifier string) (string, error) {
	atomic.AddInt32(&s.gets, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[identifier], nil
}

func testConfig() config.HashingConfig {
	return config.HashingConfig{
		PepperHex:  "6f766572616c6c2d736563726574",
		Iterations: 100,
		CacheSize:  64,
	}
}

func testContext() pcontext.PipelineContext {
	return pcontext.Initial(config.NewDefaultPipelineConfig())
}

func TestComputeDeterministic(t *testing.T) {
	h, err := NewIdentifierHasher(testConfig(), nil)
	require.NoError(t, err)

	first := h.Compute("123456789A")
	second := h.Compute("123456789A")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // 256-bit key, hex encoded

	// Length is fixed regardless of input length
	assert.Len(t, h.Compute("x"), 64)
	assert.Len(t, h.Compute("a-very-much-longer-identifier-than-usual"), 64)
}

func TestComputeSensitiveToConfig(t *testing.T) {
	base, err := NewIdentifierHasher(testConfig(), nil)
	require.NoError(t, err)

	otherPepper := testConfig()
	otherPepper.PepperHex = "646966666572656e742d736563726574"
	peppered, err := NewIdentifierHasher(otherPepper, nil)
	require.NoError(t, err)

	otherIterations := testConfig()
	otherIterations.Iterations = 101
	iterated, err := NewIdentifierHasher(otherIterations, nil)
	require.NoError(t, err)

	assert.NotEqual(t, base.Compute("123456789A"), peppered.Compute("123456789A"))
	assert.NotEqual(t, base.Compute("123456789A"), iterated.Compute("123456789A"))
}

func TestRejectsMissingPepper(t *testing.T) {
	c := testConfig()
	c.PepperHex = ""
	_, err := NewIdentifierHasher(c, nil)
	assert.Error(t, err)

	c.PepperHex = "not hex"
	_, err = NewIdentifierHasher(c, nil)
	assert.Error(t, err)
}

func TestHashUsesStoreThenCache(t *testing.T) {
	store := newFakeHashStore()
	h, err := NewIdentifierHasher(testConfig(), store)
	require.NoError(t, err)

	ctx := testContext()
	first, err := h.Hash(ctx, "123456789A")
	require.NoError(t, err)
	assert.Equal(t, h.Compute("123456789A"), first)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.gets))

	// Second call is served from memory, not the store
	second, err := h.Hash(ctx, "123456789A")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.gets))
}

func TestHashPrefersStoredValue(t *testing.T) {
	store := newFakeHashStore()
	store.hashes["123456789A"] = "previously-stored"
	h, err := NewIdentifierHasher(testConfig(), store)
	require.NoError(t, err)

	val, err := h.Hash(testContext(), "123456789A")
	require.NoError(t, err)
	assert.Equal(t, "previously-stored", val)
}

func TestConcurrentFirstCallersShareOneComputation(t *testing.T) {
	store := newFakeHashStore()
	h, err := NewIdentifierHasher(testConfig(), store)
	require.NoError(t, err)

	ctx := testContext()
	results := make([]string, 32)
	wg := sync.WaitGroup{}
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := h.Hash(ctx, "fresh-identifier")
			assert.NoError(t, err)
			results[i] = val
		}(i)
	}
	wg.Wait()

	for _, val := range results {
		assert.Equal(t, results[0], val)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.gets))
}
