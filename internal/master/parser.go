package master

import (
	"fmt"
	"strings"
)

// Section separators inside a detail packet. The server block is separated
// from the player block by three NULs; the player block from the team block
// by two NULs and the team count, which is always 2 for this game.
const (
	serverPlayerSeparator = "\x00\x00\x00"
	playerTeamSeparator   = "\x00\x00\x02"
)

// ParseDetails extracts the server attribute pairs from a detail packet
// payload (the bytes after the tag and correlation id). Only the server
// section is consumed; player and team data are not tracked.
func ParseDetails(payload []byte) ([][2]string, error) {
	data := string(payload)

	sections := splitSections(data)
	if len(sections) != 3 && !strings.HasSuffix(data, "\x00\x00") {
		return nil, fmt.Errorf("malformed detail packet: %d sections", len(sections))
	}

	fields := strings.Split(sections[0], "\x00")

	var pairs [][2]string
	for i := 0; i+1 < len(fields); i += 2 {
		pairs = append(pairs, [2]string{fields[i], fields[i+1]})
	}
	return pairs, nil
}

func splitSections(data string) []string {
	sections := []string{data}
	for _, sep := range []string{serverPlayerSeparator, playerTeamSeparator} {
		var next []string
		for _, section := range sections {
			next = append(next, strings.Split(section, sep)...)
		}
		sections = next
	}
	return sections
}
