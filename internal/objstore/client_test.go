package objstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, ServiceKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)
	client.policy.BaseDelay = time.Millisecond
	return client, server
}

func TestDownloadSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/photos/team1/a.jpg", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("image-bytes"))
	}))

	data, err := client.Download(context.Background(), "photos", "team1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestDownloadRetriesTransientStatuses(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	data, err := client.Download(context.Background(), "photos", "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Download(context.Background(), "photos", "missing.jpg")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateSignedURL(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/sign/docs/report.xlsx", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signedURL":"/object/sign/docs/report.xlsx?token=abc"}`))
	}))

	signed, err := client.CreateSignedURL(context.Background(), "docs", "report.xlsx", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/storage/v1/object/sign/docs/report.xlsx?token=abc", signed)
}

func TestRenderURL(t *testing.T) {
	client, server := newTestClient(t, http.NewServeMux())
	rendered := client.RenderURL("photos", "team1/a.jpg", RenderOptions{Width: 320, Quality: 62, Resize: "contain"})
	assert.Equal(t, server.URL+"/storage/v1/render/image/authenticated/photos/team1/a.jpg?quality=62&resize=contain&width=320", rendered)
}

func TestParseObjectURL(t *testing.T) {
	cases := []struct {
		name   string
		rawURL string
		bucket string
		path   string
		ok     bool
	}{
		{"plain object", "https://abc.supabase.co/storage/v1/object/photos/team1/a.jpg", "photos", "team1/a.jpg", true},
		{"public object", "https://abc.supabase.co/storage/v1/object/public/photos/a.jpg", "photos", "a.jpg", true},
		{"signed object", "https://abc.supabase.co/storage/v1/object/sign/photos/a.jpg?token=x", "photos", "a.jpg", true},
		{"render endpoint", "https://abc.supabase.co/storage/v1/render/image/authenticated/photos/a.jpg?width=100", "photos", "a.jpg", true},
		{"unrecognized host path", "https://cdn.example.com/images/a.jpg", "", "", false},
		{"not a url", "submissions/sub-1/photo1.jpg", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, path, err := ParseObjectURL(tc.rawURL)
			if !tc.ok {
				require.ErrorIs(t, err, ErrUnsupportedURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.path, path)
		})
	}
}
