package imaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/objstore"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/retry"
)

const (
	// TargetLongEdge keeps embedded photos small enough that a
	// six-photo report stays a reasonable download.
	TargetLongEdge = 320
	// JPEGQuality balances legibility against file size.
	JPEGQuality = 62
)

// Asset is one normalized photo: resized, recompressed bytes ready to
// embed. It lives for a single export and is discarded after use.
type Asset struct {
	Data []byte
	Ext  string
	MIME string
}

// Source identifies where a photo's bytes come from. Exactly one of
// Data, URL, or Bucket+Path should be populated; Data wins when set.
type Source struct {
	Data   []byte
	URL    string
	Bucket string
	Path   string
}

// Normalizer turns one photo source into a small embeddable JPEG. A
// failed slot returns an error the caller treats as "skip this slot";
// it must never abort a whole export.
type Normalizer interface {
	Normalize(ctx context.Context, src Source) (*Asset, error)
}

// Mode selects which normalizer strategy a deployment uses.
type Mode string

const (
	ModeRaster Mode = "raster"
	ModeTool   Mode = "tool"
	ModeRemote Mode = "remote"
)

// ForMode builds the normalizer for a deployment. Selection happens
// once at startup; business logic never branches on environment.
func ForMode(mode Mode, storage objstore.Storage, logger *zap.Logger) (Normalizer, error) {
	switch mode {
	case ModeRaster, "":
		return NewRaster(logger), nil
	case ModeTool:
		return NewTool(NewRaster(logger), logger), nil
	case ModeRemote:
		if storage == nil {
			return nil, errors.New("remote normalizer requires a storage client")
		}
		return NewRemote(storage, NewRaster(logger), logger), nil
	default:
		return nil, fmt.Errorf("unknown image normalizer mode %q", mode)
	}
}

// fetchSource loads the raw bytes behind a source: inline data, a local
// file path, or a URL fetched with retry and an explicit timeout.
func fetchSource(ctx context.Context, client *http.Client, policy retry.Policy, src Source) ([]byte, error) {
	if len(src.Data) > 0 {
		return src.Data, nil
	}
	ref := strings.TrimSpace(src.URL)
	if ref == "" {
		return nil, errors.New("image source has no data or url")
	}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ref, err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ref, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case retry.RetryableStatus(resp.StatusCode):
			return retry.Transient(fmt.Errorf("status %d", resp.StatusCode))
		default:
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err := readAllLimited(resp.Body, 25<<20)
		if err != nil {
			return retry.Transient(err)
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return data, nil
}
