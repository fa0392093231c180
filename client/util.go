package client

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
)

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// canCreateOnDevShm reports whether /dev/shm has room for size bytes. Paths
// outside /dev/shm, and platforms without it, always pass; the subsequent
// truncate surfaces real failures.
func canCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS != "linux" || filepath.Dir(path) != "/dev/shm" {
		return true
	}
	stat, err := disk.Usage("/dev/shm")
	if err != nil {
		return true
	}
	return stat.Free >= size
}
