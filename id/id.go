// Package id issues ULIDs for order tags and journal rows. ULIDs sort by
// creation time, which keeps journal tables naturally ordered.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out monotonic ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator builds a generator from a fixed seed and clock. Replays use it
// to get reproducible tags; a nil now uses time.Now.
func NewGenerator(seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:     now,
	}
}

func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		// only when the clock runs backwards past the monotonic window
		panic(err)
	}
	return u.String()
}

// Time extracts the creation time of an id.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

var std = NewGenerator(cryptoSeed(), nil)

// New returns an id from the process-wide generator.
func New() string {
	return std.New()
}

func cryptoSeed() int64 {
	var seed int64
	if err := binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed); err != nil || seed == 0 {
		seed = time.Now().UnixNano()
	}
	return seed
}
