package session

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/d4ckard/spray/internal/addr"
)

// discoverLoadAddress reads /proc/<pid>/maps to find the lowest mapped
// address of the tracee's main executable image, which is the load address
// for a PIE (zero for a non-PIE, since its preferred base is already where
// it's mapped).
func discoverLoadAddress(pid int) (addr.Load, error) {
	exePath, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return 0, err
	}

	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		if fields[5] != exePath {
			continue
		}
		rangeField := fields[0]
		lowHex, _, ok := strings.Cut(rangeField, "-")
		if !ok {
			continue
		}
		low, err := strconv.ParseUint(lowHex, 16, 64)
		if err != nil {
			return 0, err
		}
		return addr.Load(low), nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no mapping for %s found in /proc/%d/maps", exePath, pid)
}
