// Package subprocess holds the helpers shared by the ffmpeg decoder and the
// python emotion worker: binary lookup and bounded stderr capture.
package subprocess

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// MaxStderrBytes is how much stderr tail is kept for diagnostics.
const MaxStderrBytes = 8 * 1024

// ResolveBinary returns the path of preferred when set, otherwise the first of
// candidates found on PATH.
func ResolveBinary(preferred string, candidates ...string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured binary %q not found", preferred)
	}
	for _, name := range candidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no binary found on PATH (tried %s)", strings.Join(candidates, ", "))
}

// TailBuffer is an io.Writer that keeps only the last limit bytes written.
// It is safe for concurrent use, since exec copies stderr from its own goroutine.
type TailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func NewTailBuffer(limit int) *TailBuffer {
	if limit <= 0 {
		limit = MaxStderrBytes
	}
	return &TailBuffer{limit: limit}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		tail := make([]byte, t.limit)
		copy(tail, b[len(b)-t.limit:])
		t.buf.Reset()
		t.buf.Write(tail)
	}
	return n, nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Truncate keeps the last maxLen bytes of s, prefixed with "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
