package record

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"
)

// IDPrefix starts every generated emergency id.
const IDPrefix = "EMG"

const (
	idAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idSuffixLen  = 6
	idTimeLayout = "20060102150405"
)

// IDGenerator produces emergency ids for a creation time.
type IDGenerator interface {
	Generate(now time.Time) string
}

// RandomIDGenerator builds ids of the form EMG + UTC YYYYMMDDHHMMSS + six
// characters from [A-Z0-9].
//
// Thread-safety: stateless apart from Rand; crypto/rand is safe for
// concurrent use.
type RandomIDGenerator struct {
	// Rand is the entropy source. nil means crypto/rand.
	Rand io.Reader
}

// Generate returns a fresh id. Panics if the entropy source fails, which
// crypto/rand does not do in practice.
func (g RandomIDGenerator) Generate(now time.Time) string {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}

	var sb strings.Builder
	sb.Grow(len(IDPrefix) + len(idTimeLayout) + idSuffixLen)
	sb.WriteString(IDPrefix)
	sb.WriteString(now.UTC().Format(idTimeLayout))

	// Rejection sampling keeps the alphabet uniform: 252 is the largest
	// multiple of 36 that fits in a byte.
	buf := make([]byte, 1)
	for n := 0; n < idSuffixLen; {
		if _, err := io.ReadFull(src, buf); err != nil {
			panic("record: entropy source failed: " + err.Error())
		}
		if buf[0] >= 252 {
			continue
		}
		sb.WriteByte(idAlphabet[int(buf[0])%len(idAlphabet)])
		n++
	}
	return sb.String()
}

// Registry remembers ids issued within one session so a duplicate can be
// redrawn. It does not coordinate across processes.
type Registry struct {
	mu     sync.Mutex
	issued map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{issued: make(map[string]struct{})}
}

// Claim records id and reports whether it was new.
func (r *Registry) Claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issued[id]; ok {
		return false
	}
	r.issued[id] = struct{}{}
	return true
}

// Release forgets id, for a record discarded before it was ever shown.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.issued, id)
}

// Len returns the number of claimed ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issued)
}
