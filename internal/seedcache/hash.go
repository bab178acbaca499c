package seedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/esenv/internal/sentinel"
)

// ErrNoSeedFiles is returned when a seed directory contains no NDJSON files.
const ErrNoSeedFiles = sentinel.Error("no NDJSON seed files found")

// hashedFile pairs a file path with its content read during hashing.
// This allows computeDirHash to return file contents alongside the hash,
// so downstream consumers (e.g., loadSeedData) can use the already-read
// bytes instead of reading each file from disk a second time.
type hashedFile struct {
	path    string
	content []byte
}

// computeDirHash computes a deterministic SHA256 hash of all NDJSON files in
// a directory. Files are sorted by relative path for determinism. Both
// filenames and contents are hashed, so renaming a seed file (which changes
// its target index) invalidates the cache just like editing it. Returns the
// first 16 hex characters (64 bits) of the hash and the file contents so
// callers can reuse them without redundant disk reads.
func computeDirHash(dirPath string) (string, []hashedFile, error) {
	paths, err := walkSeedFiles(dirPath)
	if err != nil {
		return "", nil, fmt.Errorf("walk dir: %w", err)
	}

	if len(paths) == 0 {
		return "", nil, fmt.Errorf("%w in %s", ErrNoSeedFiles, dirPath)
	}

	h := sha256.New()
	files := make([]hashedFile, 0, len(paths))

	for _, p := range paths {
		content, readErr := os.ReadFile(p)
		if readErr != nil {
			return "", nil, fmt.Errorf("read %s: %w", p, readErr)
		}

		relPath, relErr := filepath.Rel(dirPath, p)
		if relErr != nil {
			return "", nil, fmt.Errorf("rel path: %w", relErr)
		}

		h.Write([]byte(relPath + "\x00")) // hash.Hash.Write never returns an error
		h.Write(content)
		h.Write([]byte{0}) // separator after content to prevent cross-file collisions

		files = append(files, hashedFile{path: p, content: content})
	}

	return hex.EncodeToString(h.Sum(nil))[:16], files, nil
}
