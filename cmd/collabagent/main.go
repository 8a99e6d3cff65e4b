// Command collabagent runs the client coordinator standalone, without a
// real host editor attached. It exists to exercise the wiring end to
// end (dial, negotiate, apply remote edits, resend on reconnect); a
// real embedding supplies its own EditorHost bound to an actual buffer
// and its own Config values instead of the fixed ones here — this
// binary intentionally does no flag or environment parsing, per the
// configuration Non-goal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"collabagent/agent"
)

func main() {
	logger, closeLog, err := newFileLogger("log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "collabagent: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	host := &headlessHost{log: logger.Named("host")}
	errs := &stderrSink{}

	a, err := agent.New(agent.Config{
		Addr:        "9001",
		DisplayName: "collabagent",
		Buf:         0,
		Host:        host,
		Errors:      errs,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "collabagent: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "collabagent: %v\n", err)
		os.Exit(1)
	}
}

// newFileLogger builds the diagnostics sink spec.md §6 describes: human
// readable lines appended to a file named path in the working
// directory, each prefixed with its originator (the logger name).
func newFileLogger(path string) (*zap.Logger, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("collabagent: open log file: %w", err)
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(f), zap.InfoLevel)
	logger := zap.New(core)

	return logger, func() { logger.Sync(); f.Close() }, nil
}

// headlessHost is a no-op EditorHost: it runs f inline (there is no real
// editor thread to hop to) and logs what it would have done instead of
// touching a buffer.
type headlessHost struct {
	log *zap.Logger
}

func (h *headlessHost) Schedule(f func()) { f() }

func (h *headlessHost) SetLines(buf int, start, end int, strict bool, lines []string) error {
	h.log.Info("buf_set_lines", zap.Int("buf", buf), zap.Int("start", start), zap.Int("end", end), zap.Int("nlines", len(lines)))
	return nil
}

func (h *headlessHost) SetText(buf int, sl, sc, el, ec int, lines []string) error {
	h.log.Info("buf_set_text", zap.Int("buf", buf), zap.Int("sl", sl), zap.Int("sc", sc), zap.Int("el", el), zap.Int("ec", ec))
	return nil
}

func (h *headlessHost) GetText(buf int, sl, sc, el, ec int) ([]string, error) {
	return nil, fmt.Errorf("collabagent: headless host has no buffer to read from")
}

func (h *headlessHost) OnBytes(cb agent.EditorByteCallback) {
	// No editor is attached to source on_bytes events from; local edits
	// never occur in this standalone binary.
}

type stderrSink struct{}

func (stderrSink) Report(err error) { fmt.Fprintf(os.Stderr, "collabagent: %v\n", err) }
