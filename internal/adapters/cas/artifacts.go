package cas

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/kiln/internal/adapters/atomicfile"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// hotEntries bounds the in-memory layer of the build cache.
const hotEntries = 1024

// ArtifactCache implements ports.ArtifactCache with one JSON file per
// fingerprint and an LRU of recently used entries in front of the disk.
type ArtifactCache struct {
	hot *lru.Cache[string, *domain.CacheEntry]
}

// NewArtifactCache creates a new ArtifactCache.
func NewArtifactCache() (*ArtifactCache, error) {
	hot, err := lru.New[string, *domain.CacheEntry](hotEntries)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}
	return &ArtifactCache{hot: hot}, nil
}

// Get retrieves the entry for a fingerprint. It returns nil, nil on a miss.
func (c *ArtifactCache) Get(root, fingerprint string) (*domain.CacheEntry, error) {
	key := hotKey(root, fingerprint)
	if entry, ok := c.hot.Get(key); ok {
		return entry, nil
	}

	filename := c.getFilename(root, fingerprint)
	//nolint:gosec // Path is constructed from trusted directory and fingerprint
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}
	if entry.Fingerprint != fingerprint {
		return nil, nil
	}

	c.hot.Add(key, &entry)
	return &entry, nil
}

// Put stores an entry. Concurrent writers of one fingerprint write identical bytes,
// and the rename makes whichever lands last visible whole.
func (c *ArtifactCache) Put(root string, entry domain.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	filename := c.getFilename(root, entry.Fingerprint)
	if err := atomicfile.Write(filename, data, domain.FilePerm, "artifact-*.json"); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}

	c.hot.Add(hotKey(root, entry.Fingerprint), &entry)
	return nil
}

func (c *ArtifactCache) getFilename(root, fingerprint string) string {
	shard := "00"
	if len(fingerprint) >= 2 {
		shard = fingerprint[:2]
	}
	return filepath.Join(root, domain.DefaultArtifactStorePath(), shard, fingerprint+".json")
}

func hotKey(root, fingerprint string) string {
	return root + "\x00" + fingerprint
}
