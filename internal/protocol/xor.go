package protocol

// cdkeyXorKey obfuscates the CD-key UDP protocol. Every datagram in both
// directions is XORed against this repeating key.
const cdkeyXorKey = "gamespy"

// XorCDKey applies the repeating-key XOR used by the CD-key service.
// The operation is its own inverse.
func XorCDKey(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ cdkeyXorKey[i%len(cdkeyXorKey)]
	}
	return out
}
