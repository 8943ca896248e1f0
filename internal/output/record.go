package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteRecord writes the serialized record to path, or to stdout when path is empty.
func WriteRecord(path string, data []byte, stdout io.Writer) error {
	if path == "" {
		_, err := fmt.Fprintf(stdout, "%s\n", data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
