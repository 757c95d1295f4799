//go:build linux

package symbol

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// loadRemoteImages parses /proc/<pid>/maps to recover the set of loaded
// images for a process this one does not itself run as (so
// dl_iterate_phdr, which only walks the calling process's own loader
// state, cannot see them). Each distinct backing file becomes one
// rawImage; its load bias is approximated as the start address of its
// lowest-file-offset mapping minus that offset, which coincides with the
// true runtime load bias whenever (as in every ELF layout this module has
// encountered) the first PT_LOAD segment's p_vaddr equals its file
// offset, typically because both are 0.
func loadRemoteImages(pid int32) ([]rawImage, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	type lowest struct {
		start, offset uint64
	}
	best := make(map[string]lowest)
	var order []string

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		filePath := fields[5]
		if !strings.HasPrefix(filePath, "/") {
			continue
		}

		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			continue
		}
		offset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			continue
		}

		cur, seen := best[filePath]
		if !seen {
			order = append(order, filePath)
			best[filePath] = lowest{start: start, offset: offset}
			continue
		}
		if offset < cur.offset {
			best[filePath] = lowest{start: start, offset: offset}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	images := make([]rawImage, 0, len(order))
	for _, p := range order {
		b := best[p]
		images = append(images, rawImage{path: p, loadBias: b.start - b.offset})
	}
	return images, nil
}
