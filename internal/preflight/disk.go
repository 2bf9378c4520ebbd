package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
)

// Free space thresholds for the data directory. A rebuild clears an index and
// writes it again, so headroom below LowDiskSpaceBytes only warns.
const (
	MinDiskSpaceBytes = 100 * humanize.MiByte
	LowDiskSpaceBytes = humanize.GiByte
)

// CheckDiskSpace reports the free space on the volume holding dataDir. A
// missing directory is measured at its nearest existing parent.
func (c *Checker) CheckDiskSpace(dataDir string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	dir := existingAncestor(dataDir)
	result.Details = dir

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat volume: %v", err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Status = diskStatus(free)
	switch result.Status {
	case StatusFail:
		result.Message = fmt.Sprintf("only %s free, indexes need at least %s", humanize.IBytes(free), humanize.IBytes(MinDiskSpaceBytes))
	case StatusWarn:
		result.Message = fmt.Sprintf("%s free, a full rebuild may run short", humanize.IBytes(free))
	default:
		result.Message = fmt.Sprintf("%s free", humanize.IBytes(free))
	}
	return result
}

func diskStatus(free uint64) CheckStatus {
	switch {
	case free < MinDiskSpaceBytes:
		return StatusFail
	case free < LowDiskSpaceBytes:
		return StatusWarn
	default:
		return StatusPass
	}
}

// existingAncestor returns path or the closest parent that exists.
func existingAncestor(path string) string {
	dir := filepath.Clean(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
