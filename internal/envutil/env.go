package envutil

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// LoadDotEnv reads KEY=VALUE lines into the process environment. Keys
// already present in the environment win. A missing file is not an
// error so deployments can rely on real env vars alone.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, strings.TrimSpace(value))
		}
	}
	return scanner.Err()
}

// WriteDotEnv writes values as sorted KEY=VALUE lines with 0600
// permissions. Refuses to replace an existing file unless overwrite is
// set.
func WriteDotEnv(path string, values map[string]string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, values[k])
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}
