// Package envfile is the environment writer: it materializes a
// per-workspace .env file, rewriting KEY=VALUE lines idempotently while
// preserving comments and unrelated keys, and writes atomically so a reader
// never observes a half-written file.
package envfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/loom-dev/loom/internal/loomerr"
)

var keyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ValidateKey enforces the env-var key grammar.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return loomerr.Newf(loomerr.InvalidIdentifier, "invalid env var key %q: must match [A-Z_][A-Z0-9_]*", key).WithInput(key)
	}
	return nil
}

// SetEnvVar rewrites path so that key=value holds, preserving every other
// line (including comments) and replacing any previous occurrence of
// "key=...". The file is created if missing. The write is atomic.
func SetEnvVar(path, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	lines, err := readLines(path)
	if err != nil {
		return err
	}

	replaced := false
	prefix := key + "="
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			lines[i] = prefix + value
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, prefix+value)
	}

	return writeLines(path, lines)
}

// UnsetEnvVar removes any line setting key, leaving everything else intact.
// Missing key is not an error (idempotent).
func UnsetEnvVar(path, key string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	prefix := key + "="
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			continue
		}
		out = append(out, line)
	}
	return writeLines(path, out)
}

// ReadEnvVar returns the value currently set for key in path, or ("", false)
// if the file is missing or the key is unset.
func ReadEnvVar(path, key string) (string, bool) {
	lines, err := readLines(path)
	if err != nil {
		return "", false
	}
	prefix := key + "="
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix), true
		}
	}
	return "", false
}

// ReadAll parses every KEY=VALUE line in path into a map, ignoring comments
// and blank lines. Missing file returns an empty map, not an error.
func ReadAll(path string) (map[string]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating env file directory: %w", err)
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := atomicWriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing env file %s: %w", path, err)
	}
	return nil
}
