package license

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/protocol"
)

func newTestServer() *Server {
	return NewServer("127.0.0.1:0", 1, metrics.New())
}

type replyCapture struct {
	packets [][]byte
}

func (c *replyCapture) send(data []byte) {
	c.packets = append(c.packets, data)
}

func clientAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(192, 0, 2, 20), Port: 5000}
}

func TestAuth(t *testing.T) {
	server := newTestServer()
	capture := &replyCapture{}

	resp := strings.Repeat("a", 32) + strings.Repeat("b", 40)
	query := `\auth\\pid\491\ch\ABCDEFGH\resp\` + resp + `\ip\123456\skey\2029`
	server.handleDatagram(context.Background(), protocol.XorCDKey([]byte(query)), clientAddr(), capture.send)

	require.Len(t, capture.packets, 1)
	decrypted := string(protocol.XorCDKey(capture.packets[0]))
	assert.Equal(t, `\uok\\cd\`+strings.Repeat("a", 32)+`\skey\2029`, decrypted)
}

func TestKeepAliveIgnored(t *testing.T) {
	server := newTestServer()
	capture := &replyCapture{}

	server.handleDatagram(context.Background(), protocol.XorCDKey([]byte(`\ka\`)), clientAddr(), capture.send)
	assert.Empty(t, capture.packets)
}

func TestDisconnectIgnored(t *testing.T) {
	server := newTestServer()
	capture := &replyCapture{}

	query := `\disc\\pid\491\ip\123456\skey\2029`
	server.handleDatagram(context.Background(), protocol.XorCDKey([]byte(query)), clientAddr(), capture.send)
	assert.Empty(t, capture.packets)
}

func TestAuthShortResponseDropped(t *testing.T) {
	server := newTestServer()
	capture := &replyCapture{}

	query := `\auth\\resp\tooshort\skey\2029`
	server.handleDatagram(context.Background(), protocol.XorCDKey([]byte(query)), clientAddr(), capture.send)
	assert.Empty(t, capture.packets)
}

func TestGarbageDropped(t *testing.T) {
	server := newTestServer()
	capture := &replyCapture{}

	server.handleDatagram(context.Background(), []byte{0x00, 0x01, 0x02}, clientAddr(), capture.send)
	assert.Empty(t, capture.packets)
}
