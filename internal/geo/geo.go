// Package geo resolves client IP addresses to ISO country codes using an
// ip2nation SQLite table.
package geo

import (
	"database/sql"
	"encoding/binary"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/util"
)

// UnknownCountry is returned when an address cannot be resolved.
const UnknownCountry = "??"

// Resolver maps an IP address to an uppercase two-letter country code.
// Implementations never fail; unresolvable addresses yield UnknownCountry.
type Resolver interface {
	CountryCode(ip net.IP) string
}

// IP2NationResolver resolves countries from the ip2nation table, which maps
// the start of each IPv4 range (as a big-endian uint32) to a country code.
type IP2NationResolver struct {
	db     *db.Database
	logger zerolog.Logger
}

// NewIP2NationResolver wraps an opened database holding the ip2nation table.
func NewIP2NationResolver(database *db.Database) *IP2NationResolver {
	return &IP2NationResolver{
		db:     database,
		logger: util.ComponentLogger("geo"),
	}
}

// CountryCode looks up the country for an IPv4 address. Non-IPv4 addresses
// and lookup failures resolve to UnknownCountry.
func (r *IP2NationResolver) CountryCode(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return UnknownCountry
	}

	value := binary.BigEndian.Uint32(v4)

	var country string
	err := r.db.QueryRow(
		`SELECT country FROM ip2nation WHERE ip < ? ORDER BY ip DESC LIMIT 1`,
		value).Scan(&country)
	if err == sql.ErrNoRows {
		return UnknownCountry
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("ip", ip.String()).Msg("country lookup failed")
		return UnknownCountry
	}
	if country == "" {
		return UnknownCountry
	}

	return strings.ToUpper(country)
}

// StaticResolver returns a fixed country for every address. Used when no
// ip2nation database is configured.
type StaticResolver string

// CountryCode implements Resolver.
func (s StaticResolver) CountryCode(net.IP) string {
	if s == "" {
		return UnknownCountry
	}
	return strings.ToUpper(string(s))
}
