package validate

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// TotalMemoryMB reads the machine's memory from /proc/meminfo. Returns 0
// when the value cannot be determined.
func TotalMemoryMB() int {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}

// DiskFreeGB returns the free space of the filesystem holding path.
func DiskFreeGB(path string) int {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	return int(free / (1 << 30))
}

// DiskUsedPercent returns used space of the filesystem holding path as a
// percentage.
func DiskUsedPercent(path string) (int, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	total := uint64(st.Blocks) * uint64(st.Bsize)
	if total == 0 {
		return 0, nil
	}
	used := total - uint64(st.Bavail)*uint64(st.Bsize)
	return int(used * 100 / total), nil
}

// CPUCores returns the number of logical CPUs.
func CPUCores() int { return runtime.NumCPU() }
