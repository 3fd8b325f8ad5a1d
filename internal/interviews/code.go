package interviews

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewCode returns 8 random base36 characters followed by the base36
// timestamp, upper-cased
func NewCode(at time.Time) string {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteByte(base36[rand.IntN(len(base36))])
	}
	sb.WriteString(strconv.FormatInt(at.UnixMilli(), 36))
	return strings.ToUpper(sb.String())
}

// UniqueCode returns a code not present in taken
func UniqueCode(taken map[string]bool, at time.Time) string {
	for {
		if code := NewCode(at); !taken[code] {
			return code
		}
	}
}
