package imaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/retry"
)

// Tool delegates resizing to a native image primitive (vipsthumbnail)
// through temp files, the same pattern as shelling out to an encoder.
// Deployments without the binary fall back to the raster path.
type Tool struct {
	client  *http.Client
	policy  retry.Policy
	raster  *Raster
	logger  *zap.Logger
	binary  string
	timeout time.Duration
}

func NewTool(fallback *Raster, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{
		client:  &http.Client{},
		policy:  retry.DefaultPolicy(),
		raster:  fallback,
		logger:  logger,
		binary:  "vipsthumbnail",
		timeout: 8 * time.Second,
	}
}

func (t *Tool) Normalize(ctx context.Context, src Source) (*Asset, error) {
	raw, err := fetchSource(ctx, t.client, t.policy, src)
	if err != nil {
		return nil, err
	}

	asset, err := t.resizeWithTool(ctx, raw)
	if err == nil {
		return asset, nil
	}
	if t.raster == nil {
		return nil, err
	}
	t.logger.Debug("native resize unavailable, using raster path", zap.Error(err))
	return t.raster.Encode(raw)
}

func (t *Tool) resizeWithTool(ctx context.Context, raw []byte) (*Asset, error) {
	tmpIn, err := os.CreateTemp("", "fieldkit-photo-*.img")
	if err != nil {
		return nil, err
	}
	tmpOut := tmpIn.Name() + ".jpg"
	defer func() {
		_ = os.Remove(tmpIn.Name())
		_ = os.Remove(tmpOut)
	}()

	if _, err := tmpIn.Write(raw); err != nil {
		_ = tmpIn.Close()
		return nil, err
	}
	if err := tmpIn.Close(); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	cmd := exec.CommandContext(execCtx, t.binary,
		tmpIn.Name(),
		"--size", fmt.Sprintf("%dx%d", TargetLongEdge, TargetLongEdge),
		"-o", tmpOut+fmt.Sprintf("[Q=%d]", JPEGQuality),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w (%s)", t.binary, err, strings.TrimSpace(string(output)))
	}

	resized, err := os.ReadFile(tmpOut)
	if err != nil {
		return nil, err
	}
	if len(resized) == 0 {
		return nil, errors.New("empty resize output")
	}
	return &Asset{Data: resized, Ext: ".jpg", MIME: "image/jpeg"}, nil
}
