package master

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailPayload(pairs ...string) []byte {
	server := strings.Join(pairs, "\x00")
	players := "player_\x00score_\x00deaths_\x00ping_\x00skill_"
	teams := "team_t\x00score_t"
	return []byte(server + "\x00\x00\x00" + players + "\x00\x00\x02" + teams)
}

func TestParseDetails(t *testing.T) {
	payload := detailPayload("hostname", "My Server", "gamename", "battlefield2", "hostport", "16567")

	pairs, err := ParseDetails(payload)
	require.NoError(t, err)

	assert.Equal(t, [][2]string{
		{"hostname", "My Server"},
		{"gamename", "battlefield2"},
		{"hostport", "16567"},
	}, pairs)
}

func TestParseDetailsTrailingNulForm(t *testing.T) {
	payload := []byte("hostname\x00My Server\x00\x00")

	pairs, err := ParseDetails(payload)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"hostname", "My Server"}, pairs[0])
}

func TestParseDetailsMalformed(t *testing.T) {
	_, err := ParseDetails([]byte("hostname\x00My Server"))
	assert.Error(t, err)
}

func TestGameServerSetAttribute(t *testing.T) {
	server := NewGameServer(nil, 0)

	server.SetAttribute("hostname", "  My   Cool \t Server ")
	assert.Equal(t, "My Cool Server", server.Hostname)

	server.SetAttribute("hostport", "16567")
	assert.Equal(t, 16567, server.HostPort)

	server.SetAttribute("password", "1")
	assert.True(t, server.Password)

	server.SetAttribute("bf2_teamratio", "1.5")
	assert.Equal(t, 1.5, server.TeamRatio)

	// Bad coercions leave the field untouched.
	server.SetAttribute("maxplayers", "lots")
	assert.Zero(t, server.MaxPlayers)

	// Unknown keys are ignored.
	server.SetAttribute("nosuchkey", "value")

	// Policy fields cannot be set from packet data.
	server.SetAttribute("bf2_ranked", "0")
	server.SetAttribute("bf2_pure", "0")
	server.SetAttribute("bf2_plasma", "1")
	assert.False(t, server.Ranked)
	assert.False(t, server.Pure)
	assert.False(t, server.Plasma)
}

func TestGameServerListable(t *testing.T) {
	server := NewGameServer(nil, 0)
	server.Hostname = "My Server"
	server.GameName = "BattleField2"
	server.GameVersion = "1.5"
	server.GameVariant = "bf2"
	server.GameType = "gpm_cq"
	server.MapName = "strike_at_karkand"
	server.HostPort = 16567
	server.MaxPlayers = 64
	assert.True(t, server.Listable())

	for _, mutate := range []func(*GameServer){
		func(s *GameServer) { s.Hostname = "  " },
		func(s *GameServer) { s.GameName = "quake3" },
		func(s *GameServer) { s.MapName = "" },
		func(s *GameServer) { s.HostPort = 80 },
		func(s *GameServer) { s.HostPort = 70000 },
		func(s *GameServer) { s.MaxPlayers = 0 },
	} {
		broken := *server
		mutate(&broken)
		assert.False(t, broken.Listable())
	}
}
