package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/torosent/symphoner/internal/message"
)

// ExecLauncher starts workers by re-executing a binary with the worker
// subcommand. Commands go to the child's stdin and events come back on its
// stdout as JSON lines. Child stderr is forwarded to Logger.
type ExecLauncher struct {
	// Path defaults to the running executable.
	Path string
	// Args are placed before "worker --id <id>" and Extra after it.
	Args   []string
	Extra  []string
	Env    []string
	Logger *slog.Logger
}

func (l ExecLauncher) Launch(ctx context.Context, id string) (Process, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := append([]string{}, l.Args...)
	args = append(args, "worker", "--id", id)
	args = append(args, l.Extra...)

	// The worker outlives ctx cancellation until it is aborted, so it is
	// not bound to ctx.
	cmd := exec.Command(path, args...)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	p := &execProcess{
		cmd:      cmd,
		stdin:    stdin,
		enc:      message.NewEncoder(stdin),
		messages: make(chan message.Message, 64),
		exited:   make(chan ExitStatus, 1),
		killed:   make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		forwardLog(stderr, logger.With("worker", id))
	}()
	go func() {
		defer readers.Done()
		p.read(stdout)
	}()
	go func() {
		readers.Wait()
		p.exited <- exitStatus(cmd.Wait())
	}()

	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	enc      *message.Encoder
	messages chan message.Message
	exited   chan ExitStatus
	killed   chan struct{}
	killOnce sync.Once
}

func (p *execProcess) Send(msg message.CommandMessage) error {
	return p.enc.Encode(msg)
}

func (p *execProcess) Messages() <-chan message.Message { return p.messages }

func (p *execProcess) Exited() <-chan ExitStatus { return p.exited }

func (p *execProcess) CloseInput() error {
	return p.stdin.Close()
}

func (p *execProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	_ = p.stdin.Close()
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) read(r io.Reader) {
	defer close(p.messages)
	dec := message.NewDecoder(r)
	for {
		msg, err := dec.Decode()
		if errors.Is(err, message.ErrUnrecognized) {
			continue
		}
		if err != nil {
			// Keep draining so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, r)
			return
		}
		select {
		case p.messages <- msg:
		case <-p.killed:
		}
	}
}

func forwardLog(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Info(line)
		}
	}
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return ExitStatus{Code: -1}
	}
	status := ExitStatus{Code: exitErr.ExitCode()}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
	}
	return status
}
