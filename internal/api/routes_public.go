package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/battlespy-project/battlespy/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "battlespy",
		"version": "1.0.0",
	})
}

// serverListEntry is the JSON shape of one directory entry.
type serverListEntry struct {
	IP          string `json:"ip"`
	HostPort    int    `json:"hostport"`
	QueryPort   int    `json:"queryport"`
	Hostname    string `json:"hostname"`
	Country     string `json:"country"`
	GameType    string `json:"gametype"`
	MapName     string `json:"mapname"`
	NumPlayers  int    `json:"numplayers"`
	MaxPlayers  int    `json:"maxplayers"`
	Password    bool   `json:"password"`
	GameVersion string `json:"gamever"`
	Plasma      bool   `json:"plasma"`
}

// handleGetServerList returns the validated game server directory.
func (s *Server) handleGetServerList(c *gin.Context) {
	snapshot := s.master.Registry().Snapshot()

	servers := make([]serverListEntry, 0, len(snapshot))
	for _, srv := range snapshot {
		servers = append(servers, serverListEntry{
			IP:          srv.IP.String(),
			HostPort:    srv.HostPort,
			QueryPort:   srv.QueryPort,
			Hostname:    srv.Hostname,
			Country:     srv.Country,
			GameType:    srv.GameType,
			MapName:     srv.MapName,
			NumPlayers:  srv.NumPlayers,
			MaxPlayers:  srv.MaxPlayers,
			Password:    srv.Password,
			GameVersion: srv.GameVersion,
			Plasma:      srv.Plasma,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(servers),
		"servers": servers,
	})
}

// handleGetServerInfo returns service counters and host information.
func (s *Server) handleGetServerInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()

	numAccounts, err := s.accounts.NumAccounts()
	if err != nil {
		log.Warn().Err(err).Msg("account count unavailable")
	}

	processing, authenticated := s.login.Counts()

	c.JSON(http.StatusOK, gin.H{
		"game_name":       s.cfg.GetGamespy().GameName,
		"accounts":        numAccounts,
		"sessions_online": authenticated,
		"logins_pending":  processing,
		"servers_online":  s.master.Registry().Len(),
		"platform":        sysInfo.OS,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
	})
}
