package geo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/MrEthical07/authcore"
	"github.com/oschwald/maxminddb-golang"
)

var (
	ErrInvalidIP      = errors.New("geo: invalid ip address")
	ErrUnsupportedDB  = errors.New("geo: database has no country or city data")
	ErrResolverClosed = errors.New("geo: resolver closed")
)

// record decodes the subset of the City/Country layout the snapshot needs.
type record struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// Resolver wraps a memory-mapped MaxMind reader. It is safe for concurrent use.
type Resolver struct {
	reader *maxminddb.Reader
	lang   string
}

// Open memory-maps the database at path. Call Close to release it.
func Open(path string) (*Resolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", path, err)
	}
	return newResolver(reader)
}

// FromBytes uses b directly; b must not change afterwards.
func FromBytes(b []byte) (*Resolver, error) {
	reader, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("geo: %w", err)
	}
	return newResolver(reader)
}

func newResolver(reader *maxminddb.Reader) (*Resolver, error) {
	if !supported(reader.Metadata.DatabaseType) {
		_ = reader.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDB, reader.Metadata.DatabaseType)
	}
	return &Resolver{reader: reader, lang: "en"}, nil
}

func supported(dbType string) bool {
	switch dbType {
	case "GeoLite2-City", "GeoLite2-Country",
		"GeoIP2-City", "GeoIP2-Country", "GeoIP2-Enterprise", "GeoIP2-Precision-City",
		"DBIP-City-Lite", "DBIP-Country-Lite", "DBIP-Country":
		return true
	}
	return false
}

// WithLanguage selects the names map key used for region and city. The
// default is "en".
func (r *Resolver) WithLanguage(lang string) *Resolver {
	if lang != "" {
		r.lang = lang
	}
	return r
}

// Resolve looks ip up. An address missing from the database yields a zero
// location and a nil error.
func (r *Resolver) Resolve(_ context.Context, ip string) (authcore.GeoLocation, error) {
	if r == nil || r.reader == nil {
		return authcore.GeoLocation{}, ErrResolverClosed
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return authcore.GeoLocation{}, ErrInvalidIP
	}

	var rec record
	if err := r.reader.Lookup(addr, &rec); err != nil {
		return authcore.GeoLocation{}, fmt.Errorf("geo: lookup: %w", err)
	}
	return rec.location(r.lang), nil
}

func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}

func (rec record) location(lang string) authcore.GeoLocation {
	loc := authcore.GeoLocation{
		Country: rec.Country.ISOCode,
		City:    rec.City.Names[lang],
	}
	if len(rec.Subdivisions) > 0 {
		sub := rec.Subdivisions[0]
		loc.Region = sub.ISOCode
		if name := sub.Names[lang]; name != "" {
			loc.Region = name
		}
	}
	return loc
}
