package ocr

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/invopipe/invopipe/internal/common"
)

// Install locations checked after PATH. Covers the usual poppler and
// tesseract placements on Linux and macOS (Homebrew, MacPorts keg).
var fallbackBinDirs = []string{
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/usr/bin",
	"/usr/local/opt/poppler/bin",
}

// resolveBinary turns a configured binary name into an absolute path.
// An explicit path is accepted as-is when it exists; a bare name is
// looked up on PATH and then in the fallback directories.
func resolveBinary(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty binary name: %w", common.ErrBinaryMissing)
	}

	if strings.ContainsRune(name, os.PathSeparator) {
		if st, err := os.Stat(name); err == nil && !st.IsDir() {
			return name, nil
		}
		return "", fmt.Errorf("binary %q does not exist: %w", name, common.ErrBinaryMissing)
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}

	for _, dir := range fallbackBinDirs {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}

	return "", fmt.Errorf("binary %q not found on PATH or in %v: %w", name, fallbackBinDirs, common.ErrBinaryMissing)
}
