package apply

import (
	"path/filepath"
	"strings"
)

// IsProtected reports whether path matches any protected pattern. Patterns
// match against the full slash-separated path and against the base name, so
// "*.pem" protects keys anywhere in the tree and "secrets/*" protects a
// directory.
func IsProtected(path string, patterns []string) bool {
	path = filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, path); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pat, base); err == nil && ok {
			return true
		}
		// "dir/*" style patterns protect the whole subtree, not just one level.
		if prefix, found := strings.CutSuffix(pat, "/*"); found {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
	}
	return false
}
