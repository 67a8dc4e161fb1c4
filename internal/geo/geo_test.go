package geo

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlespy-project/battlespy/internal/db"
)

func newTestResolver(t *testing.T) *IP2NationResolver {
	t.Helper()
	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "geo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(`CREATE TABLE ip2nation (ip INTEGER NOT NULL, country TEXT NOT NULL)`)
	require.NoError(t, err)

	// 1.0.0.0 -> au, 2.0.0.0 -> fr
	_, err = database.Exec(`INSERT INTO ip2nation (ip, country) VALUES (16777216, 'au'), (33554432, 'fr')`)
	require.NoError(t, err)

	return NewIP2NationResolver(database)
}

func TestCountryCode(t *testing.T) {
	resolver := newTestResolver(t)

	assert.Equal(t, "AU", resolver.CountryCode(net.ParseIP("1.2.3.4")))
	assert.Equal(t, "FR", resolver.CountryCode(net.ParseIP("9.9.9.9")))
}

func TestCountryCodeBelowAllRanges(t *testing.T) {
	resolver := newTestResolver(t)
	assert.Equal(t, UnknownCountry, resolver.CountryCode(net.ParseIP("0.0.0.1")))
}

func TestCountryCodeNonIPv4(t *testing.T) {
	resolver := newTestResolver(t)
	assert.Equal(t, UnknownCountry, resolver.CountryCode(net.ParseIP("::1")))
	assert.Equal(t, UnknownCountry, resolver.CountryCode(nil))
}

func TestStaticResolver(t *testing.T) {
	assert.Equal(t, "US", StaticResolver("us").CountryCode(net.ParseIP("1.2.3.4")))
	assert.Equal(t, UnknownCountry, StaticResolver("").CountryCode(net.ParseIP("1.2.3.4")))
}
