package exporter

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// XLSXMIME is the content type for generated workbooks.
const XLSXMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sharer hands a written file to the platform's share mechanism.
type Sharer interface {
	Share(ctx context.Context, path, mime string) error
}

// CommandSharer shells out to the host's opener. The MIME type rides
// along for platforms whose share sheet wants it.
type CommandSharer struct {
	binary string
}

func NewCommandSharer() *CommandSharer {
	binary := "xdg-open"
	if runtime.GOOS == "darwin" {
		binary = "open"
	}
	return &CommandSharer{binary: binary}
}

func (s *CommandSharer) Share(ctx context.Context, path, mime string) error {
	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(execCtx, s.binary, path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("share via %s: %w", s.binary, err)
	}
	return nil
}
