//go:build !unix

package linkmap

import (
	"log/slog"
	"os"
)

func (l *FileLoader) Load() ([]byte, error) {
	slog.Debug("Reading link map file", "path", l.Path)
	return os.ReadFile(l.Path)
}
