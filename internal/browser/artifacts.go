package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// Screenshot stores a PNG of the viewport as <screenshots dir>/<name>.png and returns its path.
func (b *Browser) Screenshot(ctx context.Context, name string) (string, error) {
	png, err := b.driver.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot %q: %w", name, err)
	}
	return b.writeArtifact(b.cfg.ScreenshotsDir, name+".png", png)
}

// StoreConsoleLog writes the browser console as pretty JSON to
// <console dir>/<name>.log. Nothing is written when the log is empty or the
// driver cannot read it.
func (b *Browser) StoreConsoleLog(ctx context.Context, name string) (string, error) {
	entries, err := b.driver.BrowserLogs(ctx)
	if errors.Is(err, schemas.ErrUnsupported) {
		b.logger.Debug("Driver does not expose console logs.", zap.String("name", name))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read console log: %w", err)
	}
	if len(entries) == 0 {
		return "", nil
	}
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return "", err
	}
	return b.writeArtifact(b.cfg.ConsoleLogDir, name+".log", data)
}

// StoreSource writes the page source to <source dir>/<name>.txt unless it is empty.
func (b *Browser) StoreSource(ctx context.Context, name string) (string, error) {
	source, err := b.driver.PageSource(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	if source == "" {
		return "", nil
	}
	return b.writeArtifact(b.cfg.SourceDir, name+".txt", []byte(source))
}

func (b *Browser) writeArtifact(dir, file string, data []byte) (string, error) {
	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	b.logger.Info("Stored browser artifact.", zap.String("path", path))
	return path, nil
}

// Tap runs fn with the browser and returns its error.
func (b *Browser) Tap(fn func(*Browser) error) error { return fn(b) }
