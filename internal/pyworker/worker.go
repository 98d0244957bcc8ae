// Package pyworker classifies frames with a long-lived Python process running
// DeepFace. Frames go in as one base64 JPEG per stdin line and each answer is
// one JSON object per stdout line.
package pyworker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/facetally/facetally/internal/deepface"
	"github.com/facetally/facetally/internal/emotion"
	"github.com/facetally/facetally/internal/subprocess"
)

const (
	DefaultScript = "scripts/emotion_worker.py"

	errCodeNoFace = "no_face"
	stopTimeout   = 5 * time.Second
)

type Config struct {
	PythonPath       string   // empty = auto-detect
	Script           string   // worker script, default scripts/emotion_worker.py
	Command          []string // full argv; overrides PythonPath and Script
	Detector         string
	EnforceDetection bool
	Logger           *slog.Logger
}

type response struct {
	DominantEmotion string `json:"dominant_emotion"`
	Error           string `json:"error"`
}

// Worker owns at most one running process. It is started on the first
// Classify call and restarted on the next call after it breaks.
type Worker struct {
	argv   []string
	logger *slog.Logger

	mu     sync.Mutex
	proc   *process
	starts int
}

func New(cfg Config) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	argv := cfg.Command
	if len(argv) == 0 {
		python, err := subprocess.ResolveBinary(cfg.PythonPath, "python3", "python")
		if err != nil {
			return nil, fmt.Errorf("cannot locate python: %w", err)
		}
		script := cfg.Script
		if script == "" {
			script = DefaultScript
		}
		argv = []string{python, "-u", script}
		if cfg.Detector != "" {
			argv = append(argv, "--detector", cfg.Detector)
		}
		if cfg.EnforceDetection {
			argv = append(argv, "--enforce-detection")
		}
	}

	return &Worker{argv: argv, logger: cfg.Logger}, nil
}

func (w *Worker) Name() string { return "python" }

// Starts reports how many processes have been launched.
func (w *Worker) Starts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.starts
}

func (w *Worker) Classify(ctx context.Context, img image.Image) emotion.Outcome {
	if err := ctx.Err(); err != nil {
		return emotion.Failed(err)
	}

	encoded, err := deepface.EncodeFrame(img)
	if err != nil {
		return emotion.Failed(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.proc == nil {
		if err := w.start(); err != nil {
			return emotion.Failed(err)
		}
	}

	resp, err := w.roundTrip(ctx, encoded)
	if err != nil {
		stderr := w.proc.stderr.String()
		w.stop(false)
		if ctx.Err() != nil {
			return emotion.Failed(ctx.Err())
		}
		w.logger.Warn("emotion worker failed, will restart on next frame",
			"error", err,
			"stderr_tail", subprocess.Truncate(stderr, 512),
		)
		return emotion.Failed(fmt.Errorf("emotion worker: %w", err))
	}

	switch {
	case resp.Error == errCodeNoFace:
		return emotion.Failed(emotion.ErrNoFace)
	case resp.Error != "":
		return emotion.Failed(errors.New(resp.Error))
	}

	label, err := emotion.ParseLabel(resp.DominantEmotion)
	if err != nil {
		return emotion.Failed(err)
	}
	return emotion.Classified(label)
}

// Close stops the running process, if any.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.proc != nil {
		w.stop(true)
	}
	return nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	pipe   *os.File
	stdout *bufio.Reader
	stderr *subprocess.TailBuffer
	done   chan struct{}
}

func (w *Worker) start() error {
	cmd := exec.Command(w.argv[0], w.argv[1:]...)
	cmd.WaitDelay = time.Second

	stderr := subprocess.NewTailBuffer(subprocess.MaxStderrBytes)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	// Wait closes pipes it creates itself, which could drop an answer the
	// script wrote just before exiting, so stdout uses a pipe owned here.
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("start emotion worker: %w", err)
	}
	pw.Close()

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		pipe:   pr,
		stdout: bufio.NewReaderSize(pr, 64*1024),
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	w.proc = p
	w.starts++
	w.logger.Info("emotion worker started", "argv", w.argv, "pid", cmd.Process.Pid)
	return nil
}

func (w *Worker) roundTrip(ctx context.Context, encoded string) (*response, error) {
	p := w.proc

	if _, err := io.WriteString(p.stdin, encoded+"\n"); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.stdout.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("read answer: %w", r.err)
		}
		var resp response
		if err := json.Unmarshal([]byte(strings.TrimSpace(r.line)), &resp); err != nil {
			return nil, fmt.Errorf("decode answer %q: %w", subprocess.Truncate(r.line, 120), err)
		}
		return &resp, nil
	}
}

// stop reaps the process. A graceful stop closes stdin so the script exits on
// EOF and kills it only if it lingers.
func (w *Worker) stop(graceful bool) {
	p := w.proc
	w.proc = nil

	_ = p.stdin.Close()
	if !graceful {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	_ = p.pipe.Close()
}
