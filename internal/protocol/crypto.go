package protocol

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
)

const (
	challengeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	ticketAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	signatureAlphabet = "123456789abcde"

	// Seed for the password obfuscation PRNG ("gspy" little-endian).
	passwordSeed int32 = 0x79707367
)

// MD5Hex returns the lowercase hex MD5 digest of s.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GenerateProof computes the challenge/response proof exchanged during login.
// The client proves knowledge of the password hash without sending it; the
// server echoes the same construction with the challenges swapped.
func GenerateProof(passwordHash, nick, challenge1, challenge2 string) string {
	return MD5Hex(passwordHash + strings.Repeat(" ", 48) + nick + challenge1 + challenge2 + passwordHash)
}

// SessionKey derives the 16-bit session key from the account name using
// CRC-16 with the reflected 0xA001 polynomial.
func SessionKey(nick string) uint16 {
	var crc uint16
	for i := 0; i < len(nick); i++ {
		crc ^= uint16(nick[i])
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// DecodePassword reverses the GameSpy "gspassenc" client-side password
// obfuscation: URL unescape, a base64 variant with \_ [ ] substitutions,
// then an XOR stream from a Lehmer-style generator.
func DecodePassword(encoded string) (string, error) {
	unescaped, err := url.PathUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid password escaping: %w", err)
	}

	replaced := strings.NewReplacer("_", "/", "[", "+", "]", "=").Replace(unescaped)
	data, err := base64.StdEncoding.DecodeString(replaced)
	if err != nil {
		return "", fmt.Errorf("invalid password encoding: %w", err)
	}

	num := passwordSeed
	for i := range data {
		num = gsNext(num)
		data[i] ^= byte(num % 0xff)
	}
	return string(data), nil
}

// gsNext advances the obfuscation PRNG. The overflow fixups replicate the
// 31-bit modular multiplication the client performs on signed arithmetic.
func gsNext(num int32) int32 {
	c := (num >> 16) & 0xffff
	a := num & 0xffff
	c *= 0x41a7
	a *= 0x41a7
	a += (c & 0x7fff) << 16
	if a < 0 {
		a &= 0x7fffffff
		a++
	}
	a += c >> 15
	if a < 0 {
		a &= 0x7fffffff
		a++
	}
	return a
}

// RandomChallenge returns the 10-character uppercase server challenge sent
// when a login connection is accepted.
func RandomChallenge() string {
	return randomString(challengeAlphabet, 10)
}

// RandomTicket returns the 24-character login ticket: 22 random alphanumerics
// followed by two underscores.
func RandomTicket() string {
	return randomString(ticketAlphabet, 22) + "__"
}

// RandomSignature returns the 32-character profile signature.
func RandomSignature() string {
	return randomString(signatureAlphabet, 32)
}

func randomString(alphabet string, length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}
