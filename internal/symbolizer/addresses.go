package symbolizer

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ParseAddresses reads one hex address per line. Only the first field of a
// line is used, blank lines and '#' comments are skipped.
func ParseAddresses(lines []string) ([]uint64, error) {
	addrs := make([]uint64, 0, len(lines))
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		addr, err := ParseAddress(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// ParseAddress accepts hex with or without a 0x prefix.
func ParseAddress(s string) (uint64, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	addr, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

func ReadAddressFile(path string) ([]uint64, error) {
	slog.Debug("Loading query addresses", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseAddresses(lines)
}
