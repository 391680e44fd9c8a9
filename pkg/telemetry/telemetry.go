package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name     string    `json:"name"`
	Start    time.Time `json:"start"`
	Steps    []Step    `json:"steps"`
	TotalMS  float64   `json:"total_ms"`
	lastMark time.Time
	tel      *Telemetry
	done     bool
}

// Telemetry writes finished traces to one jsonl file per operation name.
type Telemetry struct {
	dir              string
	mu               sync.Mutex
	files            map[string]*os.File
	buffers          map[string]*bufio.Writer
	traces           chan *Trace
	stopCh           chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
	flushInt         time.Duration
	maxFileSizeBytes int64
	bufferSize       int
	dropped          atomic.Int64
}

var (
	tel           *Telemetry
	slowThreshold atomic.Int64
)

// Init initializes the global telemetry instance.
func Init(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) error {
	t, err := New(dir, bufferSize, queueCapacity, flushInterval, maxFileSize)
	if err != nil {
		return err
	}
	tel = t
	return nil
}

// SetSlowThreshold sets the total duration above which a finished trace is
// logged at warn level. Zero disables slow logging.
func SetSlowThreshold(d time.Duration) { slowThreshold.Store(int64(d)) }

// Track starts a new trace using the global telemetry instance. Traces
// started before Init still feed the prometheus histograms.
func Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now, tel: tel}
}

// Close stops the global telemetry instance.
func Close() {
	if tel != nil {
		tel.Close()
		tel = nil
	}
}

// New creates a telemetry writer with a background flush loop.
func New(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	t := &Telemetry{
		dir:              dir,
		files:            make(map[string]*os.File),
		buffers:          make(map[string]*bufio.Writer),
		traces:           make(chan *Trace, queueCapacity),
		stopCh:           make(chan struct{}),
		flushInt:         flushInterval,
		maxFileSizeBytes: maxFileSize,
		bufferSize:       bufferSize,
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Track starts a new trace linked to this telemetry.
func (t *Telemetry) Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now, tel: t}
}

// Dropped returns the number of traces discarded because the queue was full.
func (t *Telemetry) Dropped() int64 { return t.dropped.Load() }

// Mark records the elapsed duration since the last mark.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	delta := now.Sub(tr.lastMark).Seconds() * 1000
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: delta})
	tr.lastMark = now
}

// Finish finalizes the trace, observes its histogram and enqueues it for
// writing. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr.done {
		return
	}
	tr.done = true
	total := time.Since(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	observe(tr.Name, total)
	if th := time.Duration(slowThreshold.Load()); th > 0 && total > th {
		logger.Warn("slow_operation", "op", tr.Name, "total_ms", tr.TotalMS, "steps", len(tr.Steps))
	}

	if tr.tel == nil {
		return
	}
	select {
	case tr.tel.traces <- tr:
	default:
		tr.tel.dropped.Add(1)
	}
	tr.tel = nil
}

// Close flushes buffered traces and closes files.
func (t *Telemetry) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flushInt)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.write(tr)

		case <-ticker.C:
			t.mu.Lock()
			for name, b := range t.buffers {
				b.Flush()
				f := t.files[name]
				if fi, err := f.Stat(); err == nil && t.maxFileSizeBytes > 0 && fi.Size() > t.maxFileSizeBytes {
					f.Close()
					newF, err := os.OpenFile(f.Name(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
					if err != nil {
						delete(t.files, name)
						delete(t.buffers, name)
						continue
					}
					t.files[name] = newF
					t.buffers[name] = bufio.NewWriterSize(newF, t.bufferSize)
					logger.Info("telemetry_truncated", "op", name, "max_bytes", t.maxFileSizeBytes)
				}
			}
			t.mu.Unlock()

		case <-t.stopCh:
			// drain what is already queued
			for {
				select {
				case tr := <-t.traces:
					t.write(tr)
					continue
				default:
				}
				break
			}
			t.mu.Lock()
			for _, b := range t.buffers {
				b.Flush()
			}
			for _, f := range t.files {
				f.Sync()
				f.Close()
			}
			t.files = map[string]*os.File{}
			t.buffers = map[string]*bufio.Writer{}
			t.mu.Unlock()
			return
		}
	}
}

func (t *Telemetry) write(tr *Trace) {
	if tr == nil {
		return
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.getBufferFor(tr.Name)
	if b == nil {
		return
	}
	b.Write(data)
	b.WriteByte('\n')
}

func (t *Telemetry) getBufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	path := filepath.Join(t.dir, fmt.Sprintf("%s.jsonl", sanitize(op)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Error("telemetry_open_failed", "path", path, "error", err)
		return nil
	}
	b := bufio.NewWriterSize(f, t.bufferSize)
	t.files[op] = f
	t.buffers[op] = b
	return b
}

func sanitize(op string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, op)
}
