package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAvailableProbe(t *testing.T) {
	probe := append([]byte{0x09, 0x00, 0x00, 0x00, 0x00}, []byte("battlefield2")...)
	probe = append(probe, 0x00)

	assert.True(t, IsAvailableProbe(probe))
	assert.False(t, IsAvailableProbe(probe[:len(probe)-1]))
	assert.False(t, IsAvailableProbe([]byte{0x09}))
}

func TestAvailableReply(t *testing.T) {
	assert.Equal(t, []byte{0xfe, 0xfd, 0x09, 0x00, 0x00, 0x00, 0x00}, AvailableReply())
}

func TestChallengePacket(t *testing.T) {
	id := []byte{0xde, 0xad, 0xbe, 0xef}
	packet := ChallengePacket(id)

	require.Equal(t, 28, len(packet))
	assert.Equal(t, []byte{0xfe, 0xfd, TagChallengeResponse}, packet[:3])
	assert.Equal(t, id, packet[3:7])
	assert.Equal(t, byte(0x44), packet[7])
	assert.Equal(t, byte(0x00), packet[len(packet)-1])
}

func TestAckPacket(t *testing.T) {
	id := []byte{0x01, 0x02, 0x03, 0x04}
	assert.Equal(t, []byte{0xfe, 0xfd, TagChallengeAck, 0x01, 0x02, 0x03, 0x04}, AckPacket(id))
}

func TestIsValidChallengeResponse(t *testing.T) {
	// "rbugJ44d4z+fax0/ttVVFdGbMz8A" with a trailing NUL
	valid := append([]byte("rbugJ44d4z+fax0/ttVVFdGbMz8A"), 0x00)

	assert.True(t, IsValidChallengeResponse(valid))
	assert.False(t, IsValidChallengeResponse(valid[:len(valid)-1]))
	assert.False(t, IsValidChallengeResponse([]byte("wrong")))
}

func TestXorCDKeyInvolution(t *testing.T) {
	plain := []byte(`\auth\\resp\0123456789abcdef\skey\42`)
	obfuscated := XorCDKey(plain)

	assert.NotEqual(t, plain, obfuscated)
	assert.Equal(t, plain, XorCDKey(obfuscated))
}
