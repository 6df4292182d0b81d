package exporter

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/docfetch"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/submission"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/xlsxreport"
)

// State tracks export completion for diagnostics and UI messaging.
type State string

const (
	StateBuilding   State = "BUILDING"
	StateWriting    State = "WRITING"
	StateSharing    State = "SHARING"
	StateDelivering State = "DELIVERING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// SubmissionSource is the relational lookup the exporter needs.
type SubmissionSource interface {
	SubmissionByID(ctx context.Context, id string) (submission.Record, string, error)
}

// Result is one finished export.
type Result struct {
	SubmissionID string
	TeamID       string
	FileName     string
	Data         []byte
	Path         string
	State        State
	// SlotErrors records per-slot soft failures; they never fail the
	// export and surface only here.
	SlotErrors map[int]string
}

// Exporter builds one submission's spreadsheet report end to end:
// record lookup, per-slot photo resolution and normalization, workbook
// assembly, and delivery.
type Exporter struct {
	source     SubmissionSource
	fetcher    *docfetch.Fetcher
	normalizer imaging.Normalizer
	trail      *docfetch.TrailWriter
	logger     *zap.Logger
}

func New(source SubmissionSource, fetcher *docfetch.Fetcher, normalizer imaging.Normalizer, trail *docfetch.TrailWriter, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		source:     source,
		fetcher:    fetcher,
		normalizer: normalizer,
		trail:      trail,
		logger:     logger,
	}
}

// Export builds the workbook bytes for a submission. Photo slots are
// processed strictly sequentially to bound peak memory on constrained
// hosts; a failed slot leaves its grid cell blank.
func (e *Exporter) Export(ctx context.Context, submissionID string) (*Result, error) {
	rec, teamID, err := e.source.SubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return e.ExportRecord(ctx, rec, teamID)
}

// ExportRecord builds the workbook for an already-loaded record, so a
// caller that fetched the record for its own authorization check does
// not trigger a second lookup.
func (e *Exporter) ExportRecord(ctx context.Context, rec submission.Record, teamID string) (*Result, error) {
	result := &Result{
		SubmissionID: rec.ID,
		TeamID:       teamID,
		State:        StateBuilding,
		SlotErrors:   map[int]string{},
	}

	assets := make(map[int]*imaging.Asset, len(rec.Photos))
	var trailAttempts []docfetch.Attempt
	for _, photo := range rec.Photos {
		asset, attempts, slotErr := e.resolveSlot(ctx, photo)
		trailAttempts = append(trailAttempts, attempts...)
		if slotErr != nil {
			result.SlotErrors[photo.Slot] = slotErr.Error()
			e.logger.Debug("photo slot skipped",
				zap.String("submission", rec.ID),
				zap.Int("slot", photo.Slot),
				zap.Error(slotErr))
			continue
		}
		assets[photo.Slot] = asset
	}

	if path := e.trail.Write(rec.ID, trailAttempts); path != "" {
		e.logger.Debug("probe trail recorded", zap.String("path", path))
	}

	data, name, err := xlsxreport.Build(rec, assets)
	if err != nil {
		result.State = StateFailed
		return result, fmt.Errorf("build workbook: %w", err)
	}

	result.Data = data
	result.FileName = name
	result.State = StateDelivering
	return result, nil
}

// ExportToFile builds the workbook, writes it to the first workable
// directory candidate, and hands it to the share mechanism. A write
// failure falls through to the next candidate without rebuilding; with
// no directory at all the raw bytes go to a temp file share as the
// degraded path.
func (e *Exporter) ExportToFile(ctx context.Context, submissionID string, resolver *LocationResolver, pref Preference, sharer Sharer) (*Result, error) {
	result, err := e.Export(ctx, submissionID)
	if err != nil {
		return result, err
	}

	result.State = StateWriting
	var written string
	for _, dir := range resolver.Candidates(pref) {
		target := dir + result.FileName
		if writeErr := os.WriteFile(target, result.Data, 0o644); writeErr == nil {
			written = target
			break
		} else {
			e.logger.Debug("directory candidate rejected",
				zap.String("dir", dir), zap.Error(writeErr))
		}
	}

	if written == "" {
		// Degraded path: no writable directory, share from temp. The
		// resolver fires its one-time unavailability notice here.
		resolver.Resolve(pref)
		tmp, tmpErr := os.CreateTemp("", "report-*.xlsx")
		if tmpErr != nil {
			result.State = StateFailed
			return result, fmt.Errorf("no writable location: %w", tmpErr)
		}
		if _, writeErr := tmp.Write(result.Data); writeErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			result.State = StateFailed
			return result, fmt.Errorf("no writable location: %w", writeErr)
		}
		_ = tmp.Close()
		written = tmp.Name()
	}

	result.Path = written
	result.State = StateSharing
	if sharer != nil {
		if shareErr := sharer.Share(ctx, written, XLSXMIME); shareErr != nil {
			e.logger.Warn("share mechanism unavailable", zap.Error(shareErr))
		}
	}
	result.State = StateDone
	return result, nil
}

// resolveSlot turns one photo reference into a normalized asset. URL
// references from outside the storage host are used as-is; storage
// URLs and bare paths resolve through the fetcher.
func (e *Exporter) resolveSlot(ctx context.Context, photo submission.PhotoRef) (*imaging.Asset, []docfetch.Attempt, error) {
	ref := strings.TrimSpace(photo.Ref)

	if isExternalURL(ref) {
		asset, err := e.normalizer.Normalize(ctx, imaging.Source{URL: ref})
		if err != nil {
			return nil, nil, err
		}
		return asset, nil, nil
	}

	res, err := e.fetcher.Fetch(ctx, ref, photo.Slot)
	var attempts []docfetch.Attempt
	if res != nil {
		attempts = res.Attempts
	}
	if err != nil {
		return nil, attempts, err
	}

	asset, err := e.normalizer.Normalize(ctx, imaging.Source{
		Data:   res.Data,
		Bucket: res.Bucket,
		Path:   res.Path,
	})
	if err != nil {
		return nil, attempts, err
	}
	return asset, attempts, nil
}

// isExternalURL reports whether a reference is a URL that should be
// fetched as-is rather than resolved against storage buckets.
func isExternalURL(ref string) bool {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return false
	}
	return !strings.Contains(ref, "/storage/v1/")
}
