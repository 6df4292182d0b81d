package exporter

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// Preference orders writable-location candidates.
type Preference string

const (
	PreferPersistent Preference = "persistent"
	PreferCache      Preference = "cache"
)

// LocationResolver picks a directory able to receive a generated file.
// Sandboxed runtimes sometimes report an empty standard directory, so
// every preference carries ordered fallbacks. The "storage
// unavailable" notification fires at most once per resolver instance;
// the flag is constructor-owned state, not a module-level global.
type LocationResolver struct {
	persistent []string
	cache      []string
	notify     func(message string)
	logger     *zap.Logger

	alreadyNotified bool
}

func NewLocationResolver(persistent, cache []string, notify func(string), logger *zap.Logger) *LocationResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notify == nil {
		notify = func(string) {}
	}
	return &LocationResolver{
		persistent: persistent,
		cache:      cache,
		notify:     notify,
		logger:     logger,
	}
}

// DefaultCandidates builds the host's candidate lists from its
// environment, temp directory last.
func DefaultCandidates() (persistent, cache []string) {
	home, _ := os.UserHomeDir()
	if home != "" {
		persistent = append(persistent, home+string(os.PathSeparator)+"Documents")
		persistent = append(persistent, home)
	}
	cache = append(cache, os.TempDir())
	return persistent, cache
}

// Candidates returns the ordered directory candidates for a
// preference: the preferred list first, then the other as fallback,
// with empty entries dropped and a trailing separator guaranteed.
func (r *LocationResolver) Candidates(pref Preference) []string {
	ordered := append(append([]string{}, r.persistent...), r.cache...)
	if pref == PreferCache {
		ordered = append(append([]string{}, r.cache...), r.persistent...)
	}

	var out []string
	for _, dir := range ordered {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if !strings.HasSuffix(dir, string(os.PathSeparator)) {
			dir += string(os.PathSeparator)
		}
		out = append(out, dir)
	}
	return out
}

// Resolve returns the first usable candidate. When every candidate is
// empty it signals unavailability once and reports none, letting the
// caller degrade to sharing raw bytes.
func (r *LocationResolver) Resolve(pref Preference) (string, bool) {
	candidates := r.Candidates(pref)
	if len(candidates) > 0 {
		return candidates[0], true
	}

	if !r.alreadyNotified {
		r.alreadyNotified = true
		r.logger.Warn("no writable directory candidate available")
		r.notify("file storage is unavailable on this device; the report will be shared directly")
	}
	return "", false
}
