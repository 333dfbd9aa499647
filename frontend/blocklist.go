package frontend

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// ParseBlocklist reads one address per line. Blank lines and anything after a '#'
// are ignored.
func ParseBlocklist(r io.Reader) ([]netip.Addr, error) {
	var addrs []netip.Addr

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line, _, _ := strings.Cut(sc.Text(), "#")

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		a, err := netip.ParseAddr(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}

		addrs = append(addrs, a.Unmap())
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocklist: %w", err)
	}

	return addrs, nil
}

func LoadBlocklist(path string) ([]netip.Addr, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist: %w", err)
	}
	defer file.Close()

	addrs, err := ParseBlocklist(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return addrs, nil
}

// SeedDenyList inserts addrs and returns how many were inserted. A failed insert is
// logged and the rest are still attempted.
func SeedDenyList(logger *zap.SugaredLogger, deny *store.DenyList, addrs []netip.Addr) int {
	n := 0

	for _, a := range addrs {
		if err := deny.Add(a); err != nil {
			logger.Warnw("failed to seed deny list", "addr", a, "err", err)

			continue
		}

		n++
	}

	logger.Infow("seeded deny list", "inserted", n, "total", len(addrs))

	return n
}

// ScanNslookup extracts the answer addresses from nslookup output. The server line
// ("Address: 127.0.0.53#53") does not parse as an address and is skipped.
func ScanNslookup(r io.Reader) ([]netip.Addr, error) {
	var addrs []netip.Addr

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "Address:") {
			continue
		}

		fields := strings.Fields(line)

		a, err := netip.ParseAddr(fields[len(fields)-1])
		if err != nil {
			continue
		}

		addrs = append(addrs, a.Unmap())
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nslookup output: %w", err)
	}

	return addrs, nil
}
