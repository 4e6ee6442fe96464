package primarydb

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

type ModID uint64

type UserID uint64

func (id ModID) String() string {
	return encodeBase62(uint64(id))
}

func (id UserID) String() string {
	return encodeBase62(uint64(id))
}

func ParseModID(s string) (ModID, error) {
	n, err := decodeBase62(s)
	if err != nil {
		return 0, err
	}
	return ModID(n), nil
}

// NewModID returns a random id that fits in a signed BIGINT column.
func NewModID() (ModID, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	n := binary.BigEndian.Uint64(buf[:]) >> 1
	if n == 0 {
		n = 1
	}
	return ModID(n), nil
}

func encodeBase62(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [11]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

func decodeBase62(s string) (uint64, error) {
	if len(s) == 0 || len(s) > 11 {
		return 0, fmt.Errorf("invalid base62 id %q", s)
	}
	var n uint64
	for _, c := range s {
		digit := strings.IndexRune(base62Alphabet, c)
		if digit < 0 {
			return 0, fmt.Errorf("invalid base62 id %q", s)
		}
		next := n*62 + uint64(digit)
		if next/62 != n {
			return 0, fmt.Errorf("base62 id %q overflows", s)
		}
		n = next
	}
	return n, nil
}
