package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage returns the size in bytes of each named path. A path may be a file or a directory,
// which is summed recursively. Missing or empty paths report 0.
func DiskUsage(paths map[string]string) (map[string]int64, error) {
	usage := make(map[string]int64, len(paths))
	for name, p := range paths {
		if p == "" {
			usage[name] = 0
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, err
		}
		usage[name] = n
	}
	return usage, nil
}

// pathSize includes SQLite -wal and -shm companions of a file path.
func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		total := info.Size()
		for _, suffix := range []string{"-wal", "-shm"} {
			if side, err := os.Stat(p + suffix); err == nil {
				total += side.Size()
			}
		}
		return total, nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
