package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
)

// FailedSideEffect records a follow-up write that did not land after the
// mutation that triggered it had already committed.
type FailedSideEffect struct {
	Timestamp time.Time      `json:"timestamp"`
	Trigger   string         `json:"trigger"`
	Table     string         `json:"table"`
	Fields    map[string]any `json:"fields"`
	Error     string         `json:"error"`
}

// FailedSideEffectWriter appends FailedSideEffect records to a daily jsonl file.
type FailedSideEffectWriter struct {
	mu          sync.Mutex
	basePath    string
	current     *os.File
	currentDate string
}

func NewFailedSideEffectWriter(basePath string) *FailedSideEffectWriter {
	return &FailedSideEffectWriter{basePath: basePath}
}

func (fw *FailedSideEffectWriter) Write(trigger, table string, fields map[string]any, cause error) error {
	if fw == nil || fw.basePath == "" {
		return nil
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if err := os.MkdirAll(fw.basePath, 0o700); err != nil {
		return fmt.Errorf("failed to create side effects directory: %w", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	if fw.currentDate != date || fw.current == nil {
		if fw.current != nil {
			fw.current.Close()
		}
		name := filepath.Join(fw.basePath, fmt.Sprintf("failed_side_effects_%s.jsonl", date))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open side effects file: %w", err)
		}
		fw.current = f
		fw.currentDate = date
	}

	rec := FailedSideEffect{
		Timestamp: time.Now().UTC(),
		Trigger:   trigger,
		Table:     table,
		Fields:    fields,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal side effect: %w", err)
	}
	if _, err := fw.current.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write side effect: %w", err)
	}
	return nil
}

func (fw *FailedSideEffectWriter) Close() error {
	if fw == nil {
		return nil
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.current != nil {
		err := fw.current.Close()
		fw.current = nil
		return err
	}
	return nil
}

// Crash writes a crash dump to the crash folder with diagnostics and terminates the process.
func Crash(reason string, err error) {
	crashDir := PathsVar.Crash
	if crashDir == "" {
		logger.Error("crash_path_not_initialized", "reason", reason, "error", err)
		os.Exit(1)
	}

	if e := os.MkdirAll(crashDir, 0o700); e != nil {
		logger.Error("failed_to_create_crash_dir", "error", e, "reason", reason)
		os.Exit(1)
	}

	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	f, ferr := os.Create(dumpPath)
	if ferr != nil {
		logger.Error("failed_to_create_crash_dump", "error", ferr, "reason", reason)
		os.Exit(1)
	}

	fmt.Fprintf(f, "time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	if err != nil {
		fmt.Fprintf(f, "error: %v\n", err)
	}
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Close()

	logger.Error("crash_dump_written_exiting", "path", dumpPath, "reason", reason, "error", err)
	os.Exit(1)
}
