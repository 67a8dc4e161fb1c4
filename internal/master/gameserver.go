package master

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// GameServer is one game server known to the directory, built from the
// detail heartbeats it posts.
type GameServer struct {
	IP        net.IP
	QueryPort int
	Country   string

	Validated     bool
	LastPing      time.Time
	LastRefreshed time.Time

	Hostname    string
	GameName    string
	GameVersion string
	GameVariant string
	GameType    string
	GameMode    string
	MapName     string

	HostPort   int
	NumPlayers int
	MaxPlayers int
	Password   bool
	TimeLimit  int
	RoundTime  int

	Dedicated     bool
	Ranked        bool
	AntiCheat     bool
	OS            string
	AutoRecord    bool
	DemoIndexURL  string
	DemoDownload  string
	VoIP          bool
	AutoBalanced  bool
	FriendlyFire  bool
	TKMode        string
	StartDelay    int
	SpawnTime     float64
	SponsorText   string
	SponsorLogo   string
	CommunityLogo string
	ScoreLimit    int
	TicketRatio   int
	TeamRatio     float64
	Team1         string
	Team2         string
	Bots          bool
	Pure          bool
	MapSize       int
	GlobalUnlocks bool
	FPS           int
	Plasma        bool
	ReservedSlots int
	CoopBotRatio  int
	CoopBotCount  int
	CoopBotDiff   int
	NoVehicles    bool
}

// NewGameServer creates an entry for the given remote endpoint. The query
// port is the UDP source port the heartbeat arrived from.
func NewGameServer(ip net.IP, queryPort int) *GameServer {
	return &GameServer{IP: ip, QueryPort: queryPort}
}

// Key returns the registry key for the server's endpoint.
func (s *GameServer) Key() string {
	return net.JoinHostPort(s.IP.String(), strconv.Itoa(s.QueryPort))
}

// attributeSetters maps detail packet keys to field setters. Keys the
// directory does not track are ignored by the caller. The policy fields
// bf2_ranked, bf2_pure and bf2_plasma are deliberately absent: ranked and
// pure are always forced on, and plasma comes from the server store.
var attributeSetters = map[string]func(*GameServer, string){
	"hostname":    func(s *GameServer, v string) { s.Hostname = collapseWhitespace(v) },
	"gamename":    func(s *GameServer, v string) { s.GameName = v },
	"gamever":     func(s *GameServer, v string) { s.GameVersion = v },
	"gamevariant": func(s *GameServer, v string) { s.GameVariant = v },
	"gametype":    func(s *GameServer, v string) { s.GameType = v },
	"gamemode":    func(s *GameServer, v string) { s.GameMode = v },
	"mapname":     func(s *GameServer, v string) { s.MapName = v },

	"hostport":   func(s *GameServer, v string) { setInt(&s.HostPort, v) },
	"numplayers": func(s *GameServer, v string) { setInt(&s.NumPlayers, v) },
	"maxplayers": func(s *GameServer, v string) { setInt(&s.MaxPlayers, v) },
	"password":   func(s *GameServer, v string) { setBool(&s.Password, v) },
	"timelimit":  func(s *GameServer, v string) { setInt(&s.TimeLimit, v) },
	"roundtime":  func(s *GameServer, v string) { setInt(&s.RoundTime, v) },

	"bf2_dedicated":          func(s *GameServer, v string) { setBool(&s.Dedicated, v) },
	"bf2_anticheat":          func(s *GameServer, v string) { setBool(&s.AntiCheat, v) },
	"bf2_os":                 func(s *GameServer, v string) { s.OS = v },
	"bf2_autorec":            func(s *GameServer, v string) { setBool(&s.AutoRecord, v) },
	"bf2_d_idx":              func(s *GameServer, v string) { s.DemoIndexURL = v },
	"bf2_d_dl":               func(s *GameServer, v string) { s.DemoDownload = v },
	"bf2_voip":               func(s *GameServer, v string) { setBool(&s.VoIP, v) },
	"bf2_autobalanced":       func(s *GameServer, v string) { setBool(&s.AutoBalanced, v) },
	"bf2_friendlyfire":       func(s *GameServer, v string) { setBool(&s.FriendlyFire, v) },
	"bf2_tkmode":             func(s *GameServer, v string) { s.TKMode = v },
	"bf2_startdelay":         func(s *GameServer, v string) { setInt(&s.StartDelay, v) },
	"bf2_spawntime":          func(s *GameServer, v string) { setFloat(&s.SpawnTime, v) },
	"bf2_sponsortext":        func(s *GameServer, v string) { s.SponsorText = v },
	"bf2_sponsorlogo_url":    func(s *GameServer, v string) { s.SponsorLogo = v },
	"bf2_communitylogo_url":  func(s *GameServer, v string) { s.CommunityLogo = v },
	"bf2_scorelimit":         func(s *GameServer, v string) { setInt(&s.ScoreLimit, v) },
	"bf2_ticketratio":        func(s *GameServer, v string) { setInt(&s.TicketRatio, v) },
	"bf2_teamratio":          func(s *GameServer, v string) { setFloat(&s.TeamRatio, v) },
	"bf2_team1":              func(s *GameServer, v string) { s.Team1 = v },
	"bf2_team2":              func(s *GameServer, v string) { s.Team2 = v },
	"bf2_bots":               func(s *GameServer, v string) { setBool(&s.Bots, v) },
	"bf2_mapsize":            func(s *GameServer, v string) { setInt(&s.MapSize, v) },
	"bf2_globalunlocks":      func(s *GameServer, v string) { setBool(&s.GlobalUnlocks, v) },
	"bf2_fps":                func(s *GameServer, v string) { setInt(&s.FPS, v) },
	"bf2_reservedslots":      func(s *GameServer, v string) { setInt(&s.ReservedSlots, v) },
	"bf2_coopbotratio":       func(s *GameServer, v string) { setInt(&s.CoopBotRatio, v) },
	"bf2_coopbotcount":       func(s *GameServer, v string) { setInt(&s.CoopBotCount, v) },
	"bf2_coopbotdiff":        func(s *GameServer, v string) { setInt(&s.CoopBotDiff, v) },
	"bf2_novehicles":         func(s *GameServer, v string) { setBool(&s.NoVehicles, v) },
}

// SetAttribute applies one detail key/value pair. Unknown keys are ignored,
// as are values that fail to parse for the field's type.
func (s *GameServer) SetAttribute(key, value string) {
	if setter, ok := attributeSetters[key]; ok {
		setter(s, value)
	}
}

// Listable reports whether the entry carries enough information to be shown
// in the server browser.
func (s *GameServer) Listable() bool {
	return strings.TrimSpace(s.Hostname) != "" &&
		strings.TrimSpace(s.GameVariant) != "" &&
		strings.TrimSpace(s.GameVersion) != "" &&
		strings.TrimSpace(s.GameType) != "" &&
		strings.TrimSpace(s.MapName) != "" &&
		strings.EqualFold(s.GameName, "battlefield2") &&
		s.HostPort > 1024 && s.HostPort <= 65535 &&
		s.MaxPlayers > 0
}

func setInt(dst *int, value string) {
	if v, err := strconv.Atoi(value); err == nil {
		*dst = v
	}
}

func setBool(dst *bool, value string) {
	if v, err := strconv.Atoi(value); err == nil {
		*dst = v != 0
	}
}

func setFloat(dst *float64, value string) {
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = v
	}
}

func collapseWhitespace(value string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(value), " "))
}
