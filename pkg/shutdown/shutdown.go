// Package shutdown handles fatal-error aborts with crash diagnostics and
// installs the signal handlers used for graceful shutdown.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loom/pkg/logger"
)

type exitRequest struct {
	Time      string            `json:"time"`
	Reason    string            `json:"reason"`
	Cmd       string            `json:"cmd"`
	CrashPath string            `json:"crash_path,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Abort writes crash diagnostics and exits. The delay gives log sinks and
// the crash dump time to flush before the process dies.
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Log.Error("startup_fatal", zap.String("msg", contextMsg), zap.Error(err))
	dumpPath, reqPath, derr := AbortWithDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		logger.Log.Error("abort_with_diagnostics_failed", zap.Error(derr))
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Log.Info("wrote_crash_dump", zap.String("path", dumpPath), zap.String("request", reqPath))
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	for i := delay; i > 0; i-- {
		logger.Log.Info("exiting_in_seconds", zap.Int("seconds", i))
		time.Sleep(1 * time.Second)
	}
	os.Exit(2)
}

// AbortWithDiagnostics writes a crash dump (environ plus goroutine
// stacks) and a machine-readable abort request referencing it.
func AbortWithDiagnostics(dbPath, reason string, err error) (string, string, error) {
	crashDir := "./crash"
	abortDir := "./abort"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "state", "crash")
		abortDir = filepath.Join(dbPath, "state", "abort")
	}
	if e := os.MkdirAll(crashDir, 0o700); e != nil {
		return "", "", fmt.Errorf("failed to create crash dir: %w", e)
	}
	if e := os.MkdirAll(abortDir, 0o700); e != nil {
		return "", "", fmt.Errorf("failed to create abort dir: %w", e)
	}

	ts := time.Now().UnixNano()
	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))

	f, ferr := os.CreateTemp(crashDir, ".crash-*.tmp")
	if ferr != nil {
		return "", "", fmt.Errorf("failed to create temp crash file: %w", ferr)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", err)
	fmt.Fprintf(f, "\n--- environ ---\n")
	for _, e := range os.Environ() {
		fmt.Fprintln(f, e)
	}
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Sync()
	f.Close()

	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", "", fmt.Errorf("failed to move crash dump into place: %w", err)
	}
	_ = os.Chmod(dumpPath, 0o600)

	req := exitRequest{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Cmd:       "crash",
		CrashPath: dumpPath,
		Meta:      map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	}
	reqPath, rerr := writeExitRequest(abortDir, ts, req)
	if rerr != nil {
		return dumpPath, "", rerr
	}
	return dumpPath, reqPath, nil
}

// RequestExitFile writes a simple operator-requested exit file (no dump)
// and returns its path.
func RequestExitFile(dbPath, reason string) (string, error) {
	abortDir := "./abort"
	if dbPath != "" {
		abortDir = filepath.Join(dbPath, "state", "abort")
	}
	if err := os.MkdirAll(abortDir, 0o700); err != nil {
		return "", err
	}
	req := exitRequest{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Reason: reason,
		Cmd:    "abort",
		Meta:   map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	}
	return writeExitRequest(abortDir, time.Now().UnixNano(), req)
}

func writeExitRequest(abortDir string, ts int64, req exitRequest) (string, error) {
	rtmp, err := os.CreateTemp(abortDir, ".req-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp req file: %w", err)
	}
	name := rtmp.Name()
	enc := json.NewEncoder(rtmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(req); err != nil {
		rtmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to encode req: %w", err)
	}
	rtmp.Sync()
	rtmp.Close()

	reqPath := filepath.Join(abortDir, fmt.Sprintf("req-%d.json", ts))
	if err := os.Rename(name, reqPath); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to move req into place: %w", err)
	}
	_ = os.Chmod(reqPath, 0o600)
	return reqPath, nil
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and SIGPIPE and
// returns a cancellable context. The returned context is cancelled when
// any of the watched signals arrives.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Log.Info("signal_received", zap.String("signal", s.String()))
		cancel()
	}()

	// SIGPIPE gets a goroutine stack dump to aid diagnostics
	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Log.Info("goroutine_stack_dump", zap.String("signal", s.String()), zap.String("dump", string(buf[:n])))
		cancel()
	}()

	return ctx, cancel
}
