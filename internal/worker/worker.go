// Package worker runs map tasks either in-process or in a child process that
// talks to the parent over a length-prefixed side channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/tiler/internal/contour"
	"github.com/andresmejia3/tiler/internal/extract"
	"github.com/andresmejia3/tiler/internal/partition"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/utils" // Using the SafeCommand wrapper
)

// Runner executes one task over one chunk.
// onImage may be called concurrently by different runs and may be nil.
type Runner interface {
	Run(ctx context.Context, task types.Task, chunk types.Chunk, onImage func(types.ImageStats)) (types.TaskResult, error)
}

// Execute dispatches a task to the map step of its phase.
func Execute(ctx context.Context, task types.Task, chunk types.Chunk, log io.Writer, onImage func(types.ImageStats)) (types.TaskResult, error) {
	switch task.Phase {
	case types.PhaseContour:
		return contour.Export(ctx, chunk, contour.Options{Log: log, OnImage: onImage})
	case types.PhasePatches:
		return extract.Patches(ctx, chunk, task.Config, extract.Options{Log: log, OnImage: onImage})
	case types.PhaseImages:
		return extract.Images(ctx, chunk, task.Config, extract.Options{Log: log, OnImage: onImage})
	default:
		return types.TaskResult{}, fmt.Errorf("unknown phase %q", task.Phase)
	}
}

// Inline runs tasks on the calling goroutine.
type Inline struct {
	Log io.Writer
}

func (r Inline) Run(ctx context.Context, task types.Task, chunk types.Chunk, onImage func(types.ImageStats)) (types.TaskResult, error) {
	return Execute(ctx, task, chunk, r.Log, onImage)
}

// Process runs every task in a fresh child process started as Path Args...
type Process struct {
	Path string
	Args []string
}

// Self re-executes the running binary's hidden worker command.
func Self() (Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return Process{}, err
	}
	return Process{Path: exe, Args: []string{"worker"}}, nil
}

func (p Process) Run(ctx context.Context, task types.Task, chunk types.Chunk, onImage func(types.ImageStats)) (types.TaskResult, error) {
	w, err := NewProcessWorker(ctx, chunk.Index, p.Path, p.Args...)
	if err != nil {
		return types.TaskResult{}, err
	}
	res, err := w.Communicate(task, onImage)
	closeErr := w.Close()
	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		var re *remoteError
		if errors.As(err, &re) {
			return res, err
		}
		return res, &CrashError{ID: w.ID, Err: err, Cmd: w.Cmd}
	}
	return res, nil
}

// CrashError reports a worker process that died or broke the protocol.
// Cmd still holds whatever the process wrote to stderr.
type CrashError struct {
	ID  int
	Err error
	Cmd *utils.SafeCommand
}

func (e *CrashError) Error() string { return fmt.Sprintf("worker %d crashed: %v", e.ID, e.Err) }
func (e *CrashError) Unwrap() error { return e.Err }

// ProcessWorker is a running child process serving tasks.
type ProcessWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// NewProcessWorker starts name args... with a side-channel pipe as FD 3.
// Cancelling ctx kills the process.
func NewProcessWorker(ctx context.Context, id int, name string, args ...string) (*ProcessWorker, error) {
	proc := utils.NewSafeCommandContext(ctx, name, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &ProcessWorker{
		ID:       id,
		Cmd:      proc,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one task and relays progress frames until the result arrives.
func (w *ProcessWorker) Communicate(task types.Task, onImage func(types.ImageStats)) (types.TaskResult, error) {
	if err := writeFrame(w.Stdin, task); err != nil {
		return types.TaskResult{}, fmt.Errorf("failed to send task: %w", err)
	}

	for {
		var m message
		if err := readFrame(w.DataPipe, &m); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return types.TaskResult{}, err // a crashed child surfaces here
		}
		switch {
		case m.Image != nil:
			if onImage != nil {
				onImage(*m.Image)
			}
		case m.Result != nil:
			return *m.Result, nil
		default:
			return types.TaskResult{}, m.err()
		}
	}
}

// Close ends the session and waits for the process to exit.
func (w *ProcessWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}

// Serve is the child side of the protocol: it reads tasks from in until EOF,
// runs each with r and reports progress and results on out.
func Serve(ctx context.Context, in io.Reader, out io.Writer, r Runner) error {
	for {
		var task types.Task
		if err := readFrame(in, &task); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read task: %w", err)
		}

		var sendErr error
		onImage := func(st types.ImageStats) {
			if sendErr == nil {
				sendErr = writeFrame(out, message{Image: &st})
			}
		}

		var res types.TaskResult
		chunk, err := partition.Load(task.Config.OutputDir, task.Chunk)
		if err == nil {
			res, err = r.Run(ctx, task, chunk, onImage)
		}
		if sendErr != nil {
			return sendErr
		}

		if err != nil {
			if werr := writeFrame(out, message{Error: err.Error(), Code: errorCode(err)}); werr != nil {
				return werr
			}
			continue
		}
		if err := writeFrame(out, message{Result: &res}); err != nil {
			return err
		}
	}
}
