package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/singleflight"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/metrics"
)

const derivedKeyBytes = 32

// HashStore is the durable lookup behind the in-memory cache. Writes happen
// through the load pipeline's batch transactions, not through this interface,
// so a hash row is only durable once the records referencing it are.
type HashStore interface {
	GetHash(ctx pcontext.PipelineContext, identifier string) (string, error)
}

// IdentifierHasher derives deterministic peppered hashes of beneficiary and
// claim identifiers. The pepper stands in for a salt: two independently
// operated systems must derive byte-identical hashes for the same plaintext
// without ever exchanging per-value salts.
type IdentifierHasher struct {
	pepper     []byte
	iterations int
	cache      *lru.Cache
	store      HashStore
	sf         singleflight.Group
}

func NewIdentifierHasher(c config.HashingConfig, store HashStore) (*IdentifierHasher, error) {
	pepper, err := hex.DecodeString(c.PepperHex)
	if err != nil {
		return nil, errors.Wrap(err, "error decoding hashing pepper")
	}
	if len(pepper) == 0 {
		return nil, errors.New("hashing pepper must be configured")
	}
	cacheSize := c.CacheSize
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &IdentifierHasher{
		pepper:     pepper,
		iterations: c.Iterations,
		cache:      cache,
		store:      store,
	}, nil
}

// Compute derives the hash without consulting or updating any cache. The
// output length is fixed regardless of input length.
func (h *IdentifierHasher) Compute(identifier string) string {
	key := pbkdf2.Key([]byte(identifier), h.pepper, h.iterations, derivedKeyBytes, sha256.New)
	return hex.EncodeToString(key)
}

// Hash returns the peppered hash of an identifier, consulting the in-memory
// cache, then the durable store, and only then computing. When a stored row
// exists its value wins. Concurrent callers asking for the same
// never-before-seen identifier share one lookup and one computation. The
// result is never written here - the caller persists it inside its own
// transaction.
func (h *IdentifierHasher) Hash(ctx pcontext.PipelineContext, identifier string) (string, error) {
	if val, ok := h.cache.Get(identifier); ok {
		metrics.IdentifiersHashed.With(map[string]string{"source": "memory"}).Inc()
		return val.(string), nil
	}

	val, err, _ := h.sf.Do(identifier, func() (interface{}, error) {
		if cached, ok := h.cache.Get(identifier); ok {
			return cached.(string), nil
		}

		if h.store != nil {
			stored, err := h.store.GetHash(ctx, identifier)
			if err != nil {
				return "", err
			}
			if stored != "" {
				metrics.IdentifiersHashed.With(map[string]string{"source": "store"}).Inc()
				h.cache.Add(identifier, stored)
				return stored, nil
			}
		}

		computed := h.Compute(identifier)
		metrics.IdentifiersHashed.With(map[string]string{"source": "computed"}).Inc()
		h.cache.Add(identifier, computed)
		return computed, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}
