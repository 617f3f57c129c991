package server

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// cidrGeo maps client addresses to country codes from configured prefixes.
// The most specific matching prefix wins.
type cidrGeo struct {
	entries []geoEntry
}

type geoEntry struct {
	prefix netip.Prefix
	code   string
}

// newCIDRGeo returns nil when no prefixes are configured.
func newCIDRGeo(flags map[string]string) (*cidrGeo, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	g := &cidrGeo{}
	for cidr, code := range flags {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("server: flags: %w", err)
		}
		g.entries = append(g.entries, geoEntry{prefix: p.Masked(), code: strings.ToLower(code)})
	}
	slices.SortFunc(g.entries, func(a, b geoEntry) int {
		return cmp.Compare(b.prefix.Bits(), a.prefix.Bits())
	})
	return g, nil
}

func (g *cidrGeo) Country(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	for _, e := range g.entries {
		if e.prefix.Contains(addr) {
			return e.code
		}
	}
	return ""
}
