package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnavailable means ffmpeg (or ffprobe) could not be found.
	ErrUnavailable = errors.New("ffmpeg unavailable")

	// ErrInvalidOperation means an operation's parameters failed validation.
	ErrInvalidOperation = errors.New("invalid media operation")

	// ErrProcessFailed means ffmpeg ran but did not produce the output.
	ErrProcessFailed = errors.New("ffmpeg process failed")
)

const tailLines = 20

// Result is the outcome of one Run.
type Result struct {
	Success bool

	// Unavailable is set when the engine has no ffmpeg binary.
	Unavailable bool

	// Message is a short caller facing summary.
	Message string

	// Output is the last lines of ffmpeg's stderr, for diagnostics.
	Output string

	// Err wraps ErrUnavailable, ErrInvalidOperation, ErrProcessFailed or
	// the context error. Nil on success.
	Err error
}

// Options configures an Engine.
type Options struct {
	// Dir is searched for bundled ffmpeg and ffprobe before PATH.
	Dir string

	// HWAccel selects the hardware encoder used by Convert. AccelAuto
	// probes ffmpeg once at construction.
	HWAccel Accelerator

	Logger logrus.FieldLogger
}

// Engine runs media operations with the local ffmpeg.
//
// Example usage:
//
//	engine := ffmpeg.NewEngine(ctx, ffmpeg.Options{Dir: settings.FFmpegDir})
//	if !engine.Available() {
//	    // keep the separate streams
//	}
//
//	res := engine.Run(ctx, ffmpeg.Merge{VideoPath: v, AudioPath: a, Output: out}, func(percent int) {
//	    fmt.Printf("merging %d%%\r", percent)
//	})
//	if !res.Success {
//	    log.Println(res.Message, res.Output)
//	}
type Engine struct {
	ffmpeg  string
	ffprobe string
	hw      *HWAccelConfig
	logger  logrus.FieldLogger
}

// NewEngine locates the tools and prepares the hardware configuration.
// A missing ffmpeg is not an error; the engine reports itself unavailable.
func NewEngine(ctx context.Context, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{logger: logger, hw: NewHWAccelConfig(AccelNone)}
	e.ffmpeg, _ = Locate(opts.Dir, "ffmpeg")
	e.ffprobe, _ = Locate(opts.Dir, "ffprobe")

	if !e.Available() {
		logger.Warn("ffmpeg not found, media operations are disabled")
		return e
	}

	accel := opts.HWAccel
	if accel == AccelAuto {
		available, err := e.DetectAccelerators(ctx)
		if err != nil {
			logger.WithError(err).Warn("hardware accelerator detection failed")
		}
		accel = SelectAccelerator(available)
	}
	e.hw = NewHWAccelConfig(accel)
	logger.WithFields(logrus.Fields{
		"ffmpeg":  e.ffmpeg,
		"ffprobe": e.ffprobe,
		"hwaccel": e.hw.Accelerator,
	}).Debug("media engine ready")
	return e
}

// Available reports whether ffmpeg was found.
func (e *Engine) Available() bool {
	return e.ffmpeg != ""
}

// Accelerator returns the hardware backend Convert uses.
func (e *Engine) Accelerator() Accelerator {
	return e.hw.Accelerator
}

// Run validates op, executes ffmpeg and reports progress in percent.
//
// onProgress may be nil. It is called from the calling goroutine with
// non-decreasing values; 100 is reported only after ffmpeg exits cleanly
// and the output file exists. Inputs are never modified or removed.
func (e *Engine) Run(ctx context.Context, op Operation, onProgress func(percent int)) Result {
	if err := op.Validate(); err != nil {
		return Result{Message: err.Error(), Err: err}
	}
	if !e.Available() {
		return Result{Unavailable: true, Message: "ffmpeg unavailable", Err: ErrUnavailable}
	}

	p, err := op.plan(ctx, &planEnv{hw: e.hw, probe: e.Probe})
	if err != nil {
		if ctx.Err() != nil {
			return Result{Message: "cancelled", Err: ctx.Err()}
		}
		return Result{Message: fmt.Sprintf("%s: %v", op.Name(), err), Err: err}
	}
	return e.execute(ctx, op, p, onProgress)
}

func (e *Engine) execute(ctx context.Context, op Operation, p *plan, onProgress func(int)) Result {
	log := e.logger.WithFields(logrus.Fields{"operation": op.Name(), "output": op.OutputPath()})
	log.WithField("args", strings.Join(p.args, " ")).Debug("running ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpeg, p.args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Message: err.Error(), Err: fmt.Errorf("%w: %v", ErrProcessFailed, err)}
	}
	if err := cmd.Start(); err != nil {
		return Result{Message: fmt.Sprintf("start ffmpeg: %v", err), Err: fmt.Errorf("%w: %v", ErrProcessFailed, err)}
	}

	lines := make(chan string, 64)
	go readLines(stderr, lines)

	parser := newProgressParser(p.duration)
	recent := newTail(tailLines)
	for line := range lines {
		recent.add(line)
		if percent, ok := parser.feed(line); ok && onProgress != nil {
			onProgress(percent)
		}
	}

	waitErr := cmd.Wait()
	output := strings.Join(recent.lines, "\n")

	if ctx.Err() != nil {
		log.Info("ffmpeg cancelled")
		return Result{Message: "cancelled", Output: output, Err: ctx.Err()}
	}
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		log.WithField("exit_code", code).WithField("stderr", output).Error("ffmpeg failed")
		msg := fmt.Sprintf("%s failed with exit code %d", op.Name(), code)
		if last := recent.last(); last != "" {
			msg += ": " + last
		}
		return Result{Message: msg, Output: output, Err: fmt.Errorf("%w: %s", ErrProcessFailed, msg)}
	}

	if info, err := os.Stat(op.OutputPath()); err != nil || info.Size() == 0 {
		msg := fmt.Sprintf("%s produced no output", op.Name())
		log.WithField("stderr", output).Error(msg)
		return Result{Message: msg, Output: output, Err: fmt.Errorf("%w: %s", ErrProcessFailed, msg)}
	}

	if onProgress != nil {
		onProgress(100)
	}
	return Result{Success: true, Message: op.Name() + " complete", Output: output}
}
