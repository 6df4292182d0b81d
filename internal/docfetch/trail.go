package docfetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"
)

// TrailWriter persists per-export probe diagnostics as xz-compressed
// JSON so failed resolutions can be inspected after the fact. Writes
// are best-effort; a trail failure never affects the export.
type TrailWriter struct {
	dir    string
	logger *zap.Logger
}

func NewTrailWriter(dir string, logger *zap.Logger) *TrailWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrailWriter{dir: dir, logger: logger}
}

type trailDocument struct {
	TrailID      string    `json:"trail_id"`
	SubmissionID string    `json:"submission_id"`
	RecordedAt   time.Time `json:"recorded_at"`
	Attempts     []Attempt `json:"attempts"`
}

// Write records the attempts made while resolving one submission's
// photos. Returns the trail file path for logging.
func (t *TrailWriter) Write(submissionID string, attempts []Attempt) string {
	if t == nil || t.dir == "" || len(attempts) == 0 {
		return ""
	}

	doc := trailDocument{
		TrailID:      uuid.NewString(),
		SubmissionID: submissionID,
		RecordedAt:   time.Now().UTC(),
		Attempts:     attempts,
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		t.logger.Warn("trail dir unavailable", zap.String("dir", t.dir), zap.Error(err))
		return ""
	}

	name := fmt.Sprintf("probe-%s-%s.json.xz", submissionID, doc.TrailID[:8])
	path := filepath.Join(t.dir, name)
	if err := writeCompressedJSON(path, doc); err != nil {
		t.logger.Warn("trail write failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

func writeCompressedJSON(path string, doc any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ReadTrail loads one compressed trail file back, used by the CLI's
// diagnostics command and by tests.
func ReadTrail(path string) ([]Attempt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, err
	}
	var doc trailDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Attempts, nil
}
