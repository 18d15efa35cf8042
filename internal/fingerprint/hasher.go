package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/objindex/pkg/types"
)

// DefaultCacheSize is the number of content digests kept by a Hasher.
const DefaultCacheSize = 8192

// Func computes the fingerprint of the file at path.
type Func func(path string) (types.Fingerprint, error)

// cacheKey identifies one version of a file on disk.
type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// Hasher computes fingerprints for one indexing logic version.
type Hasher struct {
	logicVersion string
	logicDigest  [32]byte
	cache        *lru.Cache[cacheKey, [32]byte]
}

// NewHasher creates a Hasher for logicVersion. cacheSize <= 0 uses
// DefaultCacheSize.
func NewHasher(logicVersion string, cacheSize int) (*Hasher, error) {
	if logicVersion == "" {
		return nil, fmt.Errorf("logic version is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, [32]byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest cache: %w", err)
	}
	return &Hasher{
		logicVersion: logicVersion,
		logicDigest:  sha256.Sum256([]byte(logicVersion)),
		cache:        cache,
	}, nil
}

// LogicVersion returns the version this hasher binds fingerprints to.
func (h *Hasher) LogicVersion() string {
	return h.logicVersion
}

// Fingerprint returns the fingerprint of the file at path. It satisfies Func.
func (h *Hasher) Fingerprint(path string) (types.Fingerprint, error) {
	content, err := h.contentDigest(path)
	if err != nil {
		return "", err
	}
	return Combine(content, h.logicDigest), nil
}

// Combine derives a fingerprint from a content digest and a logic digest.
func Combine(content, logic [32]byte) types.Fingerprint {
	sum := sha256.New()
	sum.Write(content[:])
	sum.Write(logic[:])
	return types.Fingerprint(hex.EncodeToString(sum.Sum(nil)))
}

// contentDigest returns the SHA-256 of the file, served from cache when the
// file's size and mtime are unchanged.
func (h *Hasher) contentDigest(path string) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return [32]byte{}, err
	}
	if info.IsDir() {
		return [32]byte{}, fmt.Errorf("%s is a directory", path)
	}

	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if digest, ok := h.cache.Get(key); ok {
		return digest, nil
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return [32]byte{}, err
	}

	var result [32]byte
	copy(result[:], hash.Sum(nil))
	h.cache.Add(key, result)

	return result, nil
}
