package policyopa

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type policyHashPayload struct {
	Files []policyHashFile `json:"files"`
}

type policyHashFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// ComputePolicyHash hashes a set of policy sources keyed by path. The result
// is recorded with every evaluation so a decision can be traced to the exact
// policy text that produced it.
func ComputePolicyHash(sources map[string][]byte) (string, error) {
	files := make([]policyHashFile, 0, len(sources))
	for path, data := range sources {
		files = append(files, policyHashFile{Path: filepath.ToSlash(path), SHA256: sha256Hex(data)})
	}
	return hashPolicyFiles(files)
}

func ComputePolicyHashFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return ComputePolicyHash(map[string][]byte{filepath.Base(path): data})
	}
	files, err := collectPolicyFiles(os.DirFS(path), ".")
	if err != nil {
		return "", err
	}
	return hashPolicyFiles(files)
}

func hashPolicyFiles(files []policyHashFile) (string, error) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	canonical, err := json.Marshal(policyHashPayload{Files: files})
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func collectPolicyFiles(fsys fs.FS, root string) ([]policyHashFile, error) {
	var files []policyHashFile
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == "." {
			return nil
		}
		if d.IsDir() {
			if shouldSkipDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !isPolicyFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		files = append(files, policyHashFile{
			Path:   filepath.ToSlash(path),
			SHA256: sha256Hex(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func shouldSkipDir(path string) bool {
	base := filepath.Base(path)
	return base == "vendor" || strings.HasPrefix(base, ".")
}

func isPolicyFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return base == "data.json" || strings.HasSuffix(base, ".rego")
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
