package exporter

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/docfetch"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/objstore"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/submission"
)

type fakeSource struct {
	records map[string]submission.Record
}

func (s *fakeSource) SubmissionByID(ctx context.Context, id string) (submission.Record, string, error) {
	rec, ok := s.records[id]
	if !ok {
		return submission.Record{}, "", os.ErrNotExist
	}
	return rec, "team-a", nil
}

type emptyStorage struct{}

func (emptyStorage) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	return nil, objstore.ErrNotFound
}

func (emptyStorage) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return "", objstore.ErrNotFound
}

func (emptyStorage) RenderURL(bucket, path string, opts objstore.RenderOptions) string {
	return ""
}

func (emptyStorage) DownloadURL(ctx context.Context, rawURL string) ([]byte, error) {
	return nil, objstore.ErrNotFound
}

func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestExporter(source *fakeSource) *Exporter {
	logger := zap.NewNop()
	fetcher := docfetch.NewFetcher(emptyStorage{}, nil, logger)
	return New(source, fetcher, imaging.NewRaster(logger), docfetch.NewTrailWriter("", logger), logger)
}

// Two reachable photos, four missing: the export succeeds with a
// red-filled priority cell and images only in slots 0 and 1.
func TestExportPriorityOneWithTwoPhotos(t *testing.T) {
	server := pngServer(t)
	source := &fakeSource{records: map[string]submission.Record{
		"sub-1": {
			ID:        "sub-1",
			StoreSite: "Riverside Market",
			Priority:  1,
			Photos: []submission.PhotoRef{
				{Slot: 0, Ref: server.URL + "/a.png"},
				{Slot: 1, Ref: server.URL + "/b.png"},
				{Slot: 2, Ref: "sub-1/missing"},
				{Slot: 3, Ref: "sub-1/missing"},
				{Slot: 4, Ref: "sub-1/missing"},
				{Slot: 5, Ref: "sub-1/missing"},
			},
		},
	}}

	result, err := newTestExporter(source).Export(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, StateDelivering, result.State)
	assert.Equal(t, "riverside-market-sub-1.xlsx", result.FileName)
	assert.Len(t, result.SlotErrors, 4)

	f, err := excelize.OpenReader(bytes.NewReader(result.Data))
	require.NoError(t, err)
	defer f.Close()

	// Images in slots 0 and 1 only (grid starts at row 15).
	for cell, want := range map[string]int{"A15": 1, "B15": 1, "A28": 0, "B28": 0, "A41": 0, "B41": 0} {
		pics, err := f.GetPictures("Sheet1", cell)
		require.NoError(t, err)
		assert.Len(t, pics, want, "cell %s", cell)
	}

	// Priority fill present on the value cell.
	styleID, err := f.GetCellStyle("Sheet1", "B12")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotEmpty(t, style.Fill.Color)
	assert.True(t, strings.Contains(strings.ToUpper(style.Fill.Color[0]), "FFC7CE"))
}

func TestExportAllPhotosMissingStillSucceeds(t *testing.T) {
	source := &fakeSource{records: map[string]submission.Record{
		"sub-2": {
			ID:            "sub-2",
			StoreLocation: "Main St",
			Photos: []submission.PhotoRef{
				{Slot: 0, Ref: "sub-2/gone"},
			},
		},
	}}

	result, err := newTestExporter(source).Export(context.Background(), "sub-2")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Data)
	assert.Len(t, result.SlotErrors, 1)

	f, err := excelize.OpenReader(bytes.NewReader(result.Data))
	require.NoError(t, err)
	defer f.Close()
	title, _ := f.GetCellValue("Sheet1", "A1")
	assert.Equal(t, "MAIN ST", title)
}

func TestExportUnknownSubmission(t *testing.T) {
	_, err := newTestExporter(&fakeSource{records: map[string]submission.Record{}}).
		Export(context.Background(), "nope")
	require.Error(t, err)
}

func TestExportToFileWritesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{records: map[string]submission.Record{
		"sub-3": {ID: "sub-3", StoreSite: "Corner Shop"},
	}}

	resolver := NewLocationResolver([]string{"/definitely/not/writable", dir}, nil, nil, zap.NewNop())
	result, err := newTestExporter(source).ExportToFile(context.Background(), "sub-3", resolver, PreferPersistent, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, dir+string(os.PathSeparator)+"corner-shop-sub-3.xlsx", result.Path)

	written, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, result.Data, written)
}

func TestExportToFileDegradedPath(t *testing.T) {
	source := &fakeSource{records: map[string]submission.Record{
		"sub-4": {ID: "sub-4", StoreSite: "Depot"},
	}}

	notifications := 0
	resolver := NewLocationResolver(nil, nil, func(string) { notifications++ }, zap.NewNop())
	result, err := newTestExporter(source).ExportToFile(context.Background(), "sub-4", resolver, PreferPersistent, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(result.Path) })

	assert.Equal(t, StateDone, result.State)
	assert.NotEmpty(t, result.Path)
	assert.Equal(t, 1, notifications)
}

func TestLocationResolverCandidates(t *testing.T) {
	resolver := NewLocationResolver(
		[]string{"/data/documents", "", "/data"},
		[]string{"/tmp/cache"},
		nil, zap.NewNop(),
	)

	persistentFirst := resolver.Candidates(PreferPersistent)
	assert.Equal(t, []string{"/data/documents/", "/data/", "/tmp/cache/"}, persistentFirst)

	cacheFirst := resolver.Candidates(PreferCache)
	assert.Equal(t, []string{"/tmp/cache/", "/data/documents/", "/data/"}, cacheFirst)
}

func TestLocationResolverNotifiesExactlyOnce(t *testing.T) {
	notifications := 0
	resolver := NewLocationResolver(nil, []string{"", "  "}, func(string) { notifications++ }, zap.NewNop())

	_, ok := resolver.Resolve(PreferCache)
	assert.False(t, ok)
	_, ok = resolver.Resolve(PreferCache)
	assert.False(t, ok)

	assert.Equal(t, 1, notifications)
}

func TestLocationResolverTrailingSeparator(t *testing.T) {
	resolver := NewLocationResolver([]string{"/var/data"}, nil, nil, zap.NewNop())
	dir, ok := resolver.Resolve(PreferPersistent)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(dir, string(os.PathSeparator)))
}

func TestIsExternalURL(t *testing.T) {
	assert.True(t, isExternalURL("https://cdn.example.com/a.jpg"))
	assert.False(t, isExternalURL("https://abc.supabase.co/storage/v1/object/photos/a.jpg"))
	assert.False(t, isExternalURL("submissions/sub-1"))
}
