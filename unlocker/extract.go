package unlocker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kfnunlocker/kfn"
)

// Extract writes every subfile into dir, creating it if needed.
// Subfile names come from the container, so they are flattened to their
// base name to keep writes inside dir.
func Extract(f *kfn.File, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	for _, sf := range f.Subfiles {
		name := filepath.Base(strings.ReplaceAll(string(sf.Name), "\\", "/"))
		if name == "." || name == string(filepath.Separator) || name == "/" {
			return fmt.Errorf("subfile name %q is not a file name", sf.Name)
		}

		if err := os.WriteFile(filepath.Join(dir, name), sf.Data, 0644); err != nil {
			return fmt.Errorf("writing subfile %q: %w", name, err)
		}
	}

	return nil
}
