package protocol

import "bytes"

// Master server datagram tags (first byte of client packets).
const (
	TagChallengeResponse byte = 0x01
	TagHeartbeat         byte = 0x03
	TagPing              byte = 0x08
	TagAvailable         byte = 0x09
	TagChallengeAck      byte = 0x0a
)

// Length of the correlation id that follows the tag byte.
const CorrelationIDLen = 4

// availableProbe is the exact 18-byte availability check the game client
// sends before contacting the login service.
var availableProbe = []byte{
	0x09, 0x00, 0x00, 0x00, 0x00,
	'b', 'a', 't', 't', 'l', 'e', 'f', 'i', 'e', 'l', 'd', '2',
	0x00,
}

// availableReply is the fixed response acknowledging the availability check.
var availableReply = []byte{0xfe, 0xfd, 0x09, 0x00, 0x00, 0x00, 0x00}

// serverChallenge is the challenge payload sent to unvalidated game servers
// after their first well-formed heartbeat.
var serverChallenge = []byte{
	0x44, 0x3d, 0x73, 0x7e, 0x6a, 0x59,
	'0', '0', '7', 'C', '9', '5', 'A', 'B', 'B', '5', '7', '4', 'C', 'C',
	0x00,
}

// serverValidateCode is the exact response an authentic game server computes
// from the challenge above.
var serverValidateCode = []byte{
	0x72, 0x62, 0x75, 0x67, 0x4a, 0x34, 0x34, 0x64, 0x34, 0x7a,
	0x2b, 0x66, 0x61, 0x78, 0x30, 0x2f, 0x74, 0x74, 0x56, 0x56,
	0x46, 0x64, 0x47, 0x62, 0x4d, 0x7a, 0x38, 0x41, 0x00,
}

// IsAvailableProbe reports whether the datagram is the client availability check.
func IsAvailableProbe(data []byte) bool {
	return bytes.Equal(data, availableProbe)
}

// AvailableReply returns the fixed availability acknowledgement.
func AvailableReply() []byte {
	return availableReply
}

// ChallengePacket builds the challenge datagram for a game server, echoing
// the 4-byte correlation id from its heartbeat.
func ChallengePacket(id []byte) []byte {
	packet := make([]byte, 0, 3+CorrelationIDLen+len(serverChallenge))
	packet = append(packet, 0xfe, 0xfd, TagChallengeResponse)
	packet = append(packet, id[:CorrelationIDLen]...)
	packet = append(packet, serverChallenge...)
	return packet
}

// IsValidChallengeResponse reports whether payload starts with the expected
// challenge response byte-for-byte. Trailing bytes are ignored.
func IsValidChallengeResponse(payload []byte) bool {
	return len(payload) >= len(serverValidateCode) &&
		bytes.Equal(payload[:len(serverValidateCode)], serverValidateCode)
}

// AckPacket builds the validation acknowledgement sent once a game server
// answers the challenge correctly.
func AckPacket(id []byte) []byte {
	packet := make([]byte, 0, 3+CorrelationIDLen)
	packet = append(packet, 0xfe, 0xfd, TagChallengeAck)
	packet = append(packet, id[:CorrelationIDLen]...)
	return packet
}
