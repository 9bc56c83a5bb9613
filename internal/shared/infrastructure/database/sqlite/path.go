package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// forbiddenPathChars are shell metacharacters rejected in database file paths.
var forbiddenPathChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r"}

// cleanPath validates a database file path and returns it absolute and
// symlink-resolved. In-memory databases and query parameters pass through.
func cleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("database path cannot be empty")
	}
	if strings.Contains(path, ":memory:") {
		return path, nil
	}

	file, query, _ := strings.Cut(path, "?")
	for _, char := range forbiddenPathChars {
		if strings.Contains(file, char) {
			return "", fmt.Errorf("database path contains forbidden character %q: %s", char, file)
		}
	}

	file = filepath.Clean(file)
	if !filepath.IsAbs(file) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		file = filepath.Join(cwd, file)
	}

	resolved, err := filepath.EvalSymlinks(file)
	switch {
	case err == nil:
		file = resolved
	case !os.IsNotExist(err):
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}

	if query != "" {
		return file + "?" + query, nil
	}
	return file, nil
}
