package master

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
)

// listRequestTimeout bounds how long a browser connection may take to send
// its request.
const listRequestTimeout = 10 * time.Second

// handleListRequest serves one server browser connection: read the request,
// answer with a snapshot of the validated directory, close.
func (s *Server) handleListRequest(ctx context.Context, conn *network.Connection) {
	defer conn.Close()

	if _, err := conn.ReadMessage(listRequestTimeout); err != nil {
		return
	}

	servers := s.registry.Snapshot()

	var response strings.Builder
	fmt.Fprintf(&response, `\servers\%d`, len(servers))
	for _, server := range servers {
		fmt.Fprintf(&response, `\ip\%s\port\%d\queryport\%d\hostname\%s\mapname\%s\gametype\%s\numplayers\%d\maxplayers\%d\password\%d\country\%s`,
			server.IP, server.HostPort, server.QueryPort, server.Hostname,
			server.MapName, server.GameType, server.NumPlayers, server.MaxPlayers,
			boolToInt(server.Password), server.Country)
	}
	response.WriteString(protocol.FrameTerminator)

	if err := conn.SendFrame(response.String()); err != nil {
		s.logger.Debug().Err(err).Msg("server list send failed")
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
