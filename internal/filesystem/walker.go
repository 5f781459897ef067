package filesystem

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bartblaze/community/internal/config"
	"go.uber.org/zap"
)

// Walker finds analysis report files
type Walker struct {
	logger  *zap.Logger
	exclude map[string]bool
}

// NewWalker creates a new report walker
func NewWalker(cfg *config.Config, logger *zap.Logger) *Walker {
	exclude := make(map[string]bool)
	for _, dir := range cfg.Exclude {
		exclude[dir] = true
	}

	return &Walker{
		logger:  logger,
		exclude: exclude,
	}
}

// Walk calls callback for every report under root in lexical order. A root
// that is a file is passed through whatever its extension.
func (w *Walker) Walk(root string, callback func(path string) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return callback(root)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil // Continue walking
		}

		if info.IsDir() {
			if path != root && w.exclude[info.Name()] {
				w.logger.Debug("Skipping excluded directory", zap.String("path", path))
				return filepath.SkipDir
			}
			return nil
		}

		if !IsReportFile(path) {
			return nil
		}
		return callback(path)
	})
}

// IsReportFile reports whether path looks like a JSON report
func IsReportFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
