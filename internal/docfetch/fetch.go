package docfetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/objstore"
)

// DefaultBuckets is the probe order for bare storage paths. Historical
// data lives in both; submissions is checked first.
var DefaultBuckets = []string{"submissions", "photos"}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// ErrAllCandidatesFailed reports that no (bucket, path) pair yielded
// bytes. Callers treat this as a soft per-slot failure.
var ErrAllCandidatesFailed = errors.New("no storage candidate resolved")

// Attempt records one probe for the diagnostics trail.
type Attempt struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	Method string `json:"method"`
	Error  string `json:"error,omitempty"`
	OK     bool   `json:"ok"`
}

// Result carries resolved bytes plus which probe succeeded.
type Result struct {
	Data     []byte
	Bucket   string
	Path     string
	Method   string
	Attempts []Attempt
}

// Fetcher resolves a stored photo reference (URL or bare path) to raw
// bytes by probing candidate buckets and paths in order.
type Fetcher struct {
	storage objstore.Storage
	buckets []string
	logger  *zap.Logger
}

func NewFetcher(storage objstore.Storage, buckets []string, logger *zap.Logger) *Fetcher {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{storage: storage, buckets: buckets, logger: logger}
}

// Fetch resolves one reference. A reference that is already a URL from
// a recognized storage host is parsed directly; an unrecognized URL
// host is a hard contract violation (objstore.ErrUnsupportedURL). Bare
// paths are probed across all declared buckets.
func (f *Fetcher) Fetch(ctx context.Context, ref string, slot int) (*Result, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrAllCandidatesFailed)
	}

	if looksLikeURL(ref) {
		bucket, path, err := objstore.ParseObjectURL(ref)
		if err != nil {
			return nil, err
		}
		data, err := f.storage.Download(ctx, bucket, path)
		attempt := Attempt{Bucket: bucket, Path: path, Method: "url", OK: err == nil}
		if err != nil {
			attempt.Error = err.Error()
			return &Result{Attempts: []Attempt{attempt}}, fmt.Errorf("%w: %s", ErrAllCandidatesFailed, ref)
		}
		return &Result{Data: data, Bucket: bucket, Path: path, Method: "url", Attempts: []Attempt{attempt}}, nil
	}

	candidates := Candidates(ref, slot)
	attempts := make([]Attempt, 0, len(candidates)*len(f.buckets))
	for _, bucket := range f.buckets {
		for _, candidate := range candidates {
			data, err := f.storage.Download(ctx, bucket, candidate)
			attempt := Attempt{Bucket: bucket, Path: candidate, Method: "probe", OK: err == nil}
			if err != nil {
				attempt.Error = err.Error()
				attempts = append(attempts, attempt)
				continue
			}
			attempts = append(attempts, attempt)
			f.logger.Debug("storage probe resolved",
				zap.String("bucket", bucket), zap.String("path", candidate), zap.Int("slot", slot))
			return &Result{Data: data, Bucket: bucket, Path: candidate, Method: "probe", Attempts: attempts}, nil
		}
	}

	f.logger.Debug("storage probe exhausted",
		zap.String("ref", ref), zap.Int("slot", slot), zap.Int("attempts", len(attempts)))
	return &Result{Attempts: attempts}, fmt.Errorf("%w: %s", ErrAllCandidatesFailed, ref)
}

// Candidates builds the ordered, deduplicated path candidate list for a
// bare reference. A reference that already names a file (image
// extension suffix) yields exactly itself; a bare prefix additionally
// yields synthesized slot file names in jpg/jpeg/png order.
func Candidates(ref string, slot int) []string {
	ref = strings.Trim(strings.TrimSpace(ref), "/")
	candidates := []string{ref}
	if hasImageExtension(ref) {
		return candidates
	}
	seen := map[string]bool{ref: true}
	for _, ext := range []string{".jpg", ".jpeg", ".png"} {
		candidate := fmt.Sprintf("%s/photo%d%s", ref, slot+1, ext)
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		candidates = append(candidates, candidate)
	}
	return candidates
}

func hasImageExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func looksLikeURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
