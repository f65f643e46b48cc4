package ffmpeg

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Locate finds the named tool, preferring a binary inside bundledDir and
// falling back to PATH. It returns false when neither has it.
func Locate(bundledDir, name string) (string, bool) {
	bin := executableName(name)

	if dir := strings.TrimSpace(bundledDir); dir != "" {
		for _, candidate := range []string{filepath.Join(dir, bin), filepath.Join(dir, "bin", bin)} {
			if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
				return candidate, true
			}
		}
	}

	if path, err := exec.LookPath(bin); err == nil {
		return path, true
	}
	return "", false
}

func executableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
