package rtmpdump

import (
	"os/exec"
	"sync"

	"github.com/drnu/drnu-downloader/server/internal/rtmp"
)

// hub is the process wide diagnostic and socket state shared by every
// Engine. SetLogCallback replaces the callback for all sessions.
var hub = &diagnostics{level: rtmp.LogInfo}

type diagnostics struct {
	mu      sync.RWMutex
	cb      rtmp.LogCallback
	level   rtmp.LogLevel
	sockets int
}

func (d *diagnostics) setLevel(l rtmp.LogLevel) {
	d.mu.Lock()
	d.level = l
	d.mu.Unlock()
}

func (d *diagnostics) Level() rtmp.LogLevel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

func (d *diagnostics) setCallback(cb rtmp.LogCallback) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

// dispatch forwards msg to the registered callback when level passes the
// configured verbosity. Errors are never filtered.
func (d *diagnostics) dispatch(level rtmp.LogLevel, msg string) {
	d.mu.RLock()
	cb, max := d.cb, d.level
	d.mu.RUnlock()

	if cb == nil {
		return
	}
	if level > rtmp.LogError && level > max {
		return
	}
	cb(level, msg)
}

// acquire resolves the executable on the first reference.
func (d *diagnostics) acquire(path string) (string, bool) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", false
	}

	d.mu.Lock()
	d.sockets++
	d.mu.Unlock()

	return resolved, true
}

func (d *diagnostics) release() {
	d.mu.Lock()
	if d.sockets > 0 {
		d.sockets--
	}
	d.mu.Unlock()
}

func (d *diagnostics) refs() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sockets
}
