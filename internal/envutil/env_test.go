package envutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nFOO_A=one\nFOO_B = two \nmalformed line\n=nokey\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("FOO_A", "preset")
	t.Setenv("FOO_B", "")
	require.NoError(t, os.Unsetenv("FOO_B"))

	require.NoError(t, LoadDotEnv(path))

	// Existing values win; missing keys get filled in trimmed.
	assert.Equal(t, "preset", os.Getenv("FOO_A"))
	assert.Equal(t, "two", os.Getenv("FOO_B"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestWriteDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	err := WriteDotEnv(path, map[string]string{"B_KEY": "2", "A_KEY": "1"}, false)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A_KEY=1\nB_KEY=2\n", string(data))

	err = WriteDotEnv(path, map[string]string{"A_KEY": "3"}, false)
	assert.Error(t, err)

	require.NoError(t, WriteDotEnv(path, map[string]string{"A_KEY": "3"}, true))
}
