package messaging

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval backs up fsnotify for the events a rename-based rotation
// can swallow.
const pollInterval = 2 * time.Second

// Tailer follows agent_messages.log, decoding each complete JSON line
// into a record. Rotation resets the read offset so the fresh file is
// picked up from the start.
type Tailer struct {
	path    string
	offset  int64
	partial []byte
}

// NewTailer creates a tailer for the given log path.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

// Run starts following the log. Existing records are emitted first, then
// new ones as they are appended. The returned channel closes when done
// closes or the watcher fails.
func (t *Tailer) Run(done <-chan struct{}) (<-chan LogRecord, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: the log may not exist yet and
	// rotation replaces the inode.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan LogRecord, 64)
	go func() {
		defer close(out)
		defer watcher.Close()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		emit := func() {
			for _, rec := range t.readNew() {
				select {
				case out <- rec:
				case <-done:
					return
				}
			}
		}

		emit()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == t.path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					emit()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-ticker.C:
				emit()
			}
		}
	}()
	return out, nil
}

// readNew reads records appended since the last call. A file smaller
// than the stored offset means rotation happened; reading restarts at
// the beginning.
func (t *Tailer) readNew() []LogRecord {
	f, err := os.Open(t.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil
	}
	if fi.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil
	}
	data, err := io.ReadAll(f)
	if err != nil && len(data) == 0 {
		return nil
	}
	t.offset += int64(len(data))

	var recs []LogRecord
	buf := append(t.partial, data...)
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := buf[:idx]
		buf = buf[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	t.partial = append([]byte(nil), buf...)
	return recs
}
