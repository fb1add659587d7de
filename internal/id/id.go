package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Expectation returns a new expectation id.
func Expectation() string {
	return uuid.NewString()
}

// Stable returns a name-based UUID, the same for the same name.
func Stable(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Correlation returns a new request correlation id.
func Correlation() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ulidEncoding is Crockford's Base32 (no I, L, O, U).
const ulidEncoding = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ulidMu      sync.Mutex
	ulidLastMs  int64
	ulidCounter uint16
)

// ULID returns a 26 character identifier: 48 bits of millisecond timestamp
// followed by 80 bits of randomness. Ids generated later sort later, and ids
// generated within one millisecond differ in their counter bits.
func ULID() string {
	ulidMu.Lock()
	now := time.Now().UnixMilli()
	if now <= ulidLastMs {
		now = ulidLastMs
		ulidCounter++
		if ulidCounter == 0 {
			now++
		}
	} else {
		ulidCounter = 0
	}
	ulidLastMs = now
	counter := ulidCounter
	ulidMu.Unlock()

	return encodeULID(now, counter)
}

func encodeULID(ms int64, counter uint16) string {
	var random [10]byte
	_, _ = rand.Read(random[:])
	// The counter occupies the top 16 random bits so that ids within one
	// millisecond stay ordered.
	random[0] = byte(counter >> 8)
	random[1] = byte(counter)

	out := make([]byte, 26)
	for i := 9; i >= 0; i-- {
		out[i] = ulidEncoding[ms&0x1F]
		ms >>= 5
	}

	// 80 random bits as 16 five-bit groups.
	var acc uint32
	bits := 0
	pos := 10
	for _, b := range random {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = ulidEncoding[(acc>>uint(bits))&0x1F]
			pos++
		}
	}
	return string(out)
}

// ULIDTime extracts the timestamp from a ULID.
func ULIDTime(ulid string) (time.Time, error) {
	if len(ulid) != 26 {
		return time.Time{}, fmt.Errorf("invalid ULID %q", ulid)
	}
	var ms int64
	for i := 0; i < 26; i++ {
		v := decodeULIDChar(ulid[i])
		if v < 0 {
			return time.Time{}, fmt.Errorf("invalid ULID character %q at position %d", ulid[i], i)
		}
		if i < 10 {
			ms = ms<<5 | int64(v)
		}
	}
	return time.UnixMilli(ms), nil
}

func decodeULIDChar(c byte) int {
	for i := 0; i < len(ulidEncoding); i++ {
		if ulidEncoding[i] == c {
			return i
		}
	}
	return -1
}
