// Package artifact locates built kernel images inside the build tree.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	ProfileRelease = "release"
	ProfileDebug   = "debug"
)

// Artifact identifies one built kernel image. The build system places
// images at <build-root>/<target-triple>/<profile>/<name>.elf.
type Artifact struct {
	BuildRoot    string
	TargetTriple string
	Profile      string
	Name         string
}

func (a Artifact) Path() string {
	return filepath.Join(a.BuildRoot, a.TargetTriple, a.Profile, a.Name+".elf")
}

// Resolve returns the image path after checking that the build actually
// produced it. Flashing must not reach for the probe with a stale or
// missing image.
func (a Artifact) Resolve() (string, error) {
	path := a.Path()
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("artifact not built: %s (run make first)", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("artifact not built: %s is a directory", path)
	}
	return path, nil
}

// Size reports the image size in bytes, for throughput accounting.
func (a Artifact) Size() (int64, error) {
	info, err := os.Stat(a.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// SHA256 digests the image so the farm status can tell which build is
// on each board.
func (a Artifact) SHA256() (string, error) {
	file, err := os.Open(a.Path())
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
