package seedcache

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// walkSeedFiles returns all NDJSON seed files in a directory, sorted for
// determinism. Each file holds the documents of one index, one JSON object
// per line; the index name is the file name without extension.
func walkSeedFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".ndjson" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", dirPath, err)
	}
	slices.Sort(files)
	return files, nil
}

// indexNameForFile derives the target index name from a seed file path
// (e.g., "/seeds/users.ndjson" -> "users").
func indexNameForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
