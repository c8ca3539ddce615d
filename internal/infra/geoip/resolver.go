// Package geoip maps client addresses to ISO country codes for locale
// detection in the web UI.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

var ErrUnavailable = errors.New("geoip: resolver unavailable")

// Resolver wraps a MaxMind country database. A nil *Resolver is valid and
// resolves nothing.
type Resolver struct {
	reader *geoip2.Reader
	path   string
}

// Open loads the database at path. An empty path returns a nil resolver and
// no error so the lookup stays optional.
func Open(path string) (*Resolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &Resolver{reader: reader, path: path}, nil
}

// Country returns the ISO code for ip. Private, loopback and unparsable
// addresses resolve to "" without consulting the database.
func (r *Resolver) Country(ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", nil
	}
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup %s: %w", ip, err)
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Lookup adapts the resolver to middleware.CountryLookup. It returns nil for a
// nil resolver so the middleware skips the database entirely.
func (r *Resolver) Lookup() func(ip string) (string, error) {
	if r == nil {
		return nil
	}
	return r.Country
}

func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
