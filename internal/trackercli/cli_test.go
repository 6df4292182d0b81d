package trackercli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/docfetch"
)

func TestSetupWritesEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	err := Execute([]string{"setup", "--storage-url", "https://storage.example.com", "--env-file", path})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "STORAGE_URL=https://storage.example.com")
	assert.Contains(t, string(data), "API_ADDR=:8080")

	// Refuses to clobber without --force.
	err = Execute([]string{"setup", "--storage-url", "https://storage.example.com", "--env-file", path})
	assert.Error(t, err)

	err = Execute([]string{"setup", "--storage-url", "https://storage.example.com", "--env-file", path, "--force"})
	assert.NoError(t, err)
}

func TestSetupRequiresStorageURL(t *testing.T) {
	err := Execute([]string{"setup", "--env-file", filepath.Join(t.TempDir(), ".env")})
	assert.Error(t, err)
}

func TestExportRejectsUnknownPreference(t *testing.T) {
	err := Execute([]string{"export", "sub-1", "--prefer", "bogus", "--env-file", filepath.Join(t.TempDir(), ".env")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestPrintAttempts(t *testing.T) {
	var buf bytes.Buffer
	printAttempts(&buf, []docfetch.Attempt{
		{Bucket: "submissions", Path: "a.jpg", Method: "download", Error: "object not found"},
		{Bucket: "photos", Path: "a.jpg", Method: "download", OK: true},
	})

	out := buf.String()
	assert.Contains(t, out, "download submissions/a.jpg: object not found")
	assert.Contains(t, out, "download photos/a.jpg: ok")
}

func TestTrailCommandReadsTrailFile(t *testing.T) {
	writer := docfetch.NewTrailWriter(t.TempDir(), nil)
	path := writer.Write("sub-9", []docfetch.Attempt{
		{Bucket: "submissions", Path: "p.jpg", Method: "download", OK: true},
	})
	require.NotEmpty(t, path)

	err := Execute([]string{"trail", path})
	assert.NoError(t, err)
}
