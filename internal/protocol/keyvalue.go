// Package protocol implements the GameSpy wire formats: backslash-delimited
// key/value frames for the TCP services and the binary datagram layout used
// by the master server heartbeat exchange.
package protocol

import (
	"fmt"
	"strings"
)

// FrameTerminator marks the end of every key/value message on the wire.
const FrameTerminator = `\final\`

// Frame is a single parsed key/value message. The first token after the
// leading backslash is the command name; the remaining tokens are key/value
// pairs. Duplicate keys keep the first value seen.
type Frame struct {
	Command string
	Keys    map[string]string
}

// ParseFrame parses one backslash-delimited message (without the trailing
// terminator). Messages are of the form \command\\key\value\key\value: the
// token directly after the command is the command's own value and is
// discarded, key/value pairing starts after it.
func ParseFrame(message string) (*Frame, error) {
	trimmed := strings.TrimPrefix(message, `\`)
	trimmed = strings.TrimSuffix(trimmed, `\`)
	if trimmed == "" {
		return nil, fmt.Errorf("empty message")
	}

	parts := strings.Split(trimmed, `\`)
	frame := &Frame{
		Command: strings.ToLower(parts[0]),
		Keys:    make(map[string]string),
	}

	// Pair off the remaining tokens. A dangling key without a value is dropped.
	for i := 2; i+1 < len(parts); i += 2 {
		key := strings.ToLower(parts[i])
		if key == "" {
			continue
		}
		if _, exists := frame.Keys[key]; !exists {
			frame.Keys[key] = parts[i+1]
		}
	}

	return frame, nil
}

// Get returns the value for key, or the empty string if absent.
func (f *Frame) Get(key string) string {
	return f.Keys[key]
}

// Has reports whether all of the given keys are present in the frame.
func (f *Frame) Has(keys ...string) bool {
	for _, key := range keys {
		if _, ok := f.Keys[key]; !ok {
			return false
		}
	}
	return true
}

// ErrorFrame builds the standard GameSpy error response. Every error the
// suite emits is fatal from the client's point of view.
func ErrorFrame(code int, message string) string {
	return fmt.Sprintf(`\error\\err\%d\fatal\\errmsg\%s\id\1%s`, code, message, FrameTerminator)
}

// SplitMessages splits a raw TCP read into complete frames, returning any
// trailing partial message so the caller can buffer it for the next read.
func SplitMessages(data string) (complete []string, remainder string) {
	for {
		idx := strings.Index(data, FrameTerminator)
		if idx < 0 {
			return complete, data
		}
		complete = append(complete, data[:idx])
		data = data[idx+len(FrameTerminator):]
	}
}
