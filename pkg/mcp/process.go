package mcp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/spyglass-browser/spyglass/pkg/log"
)

// ServerProcess owns one supervised tool-server child process: spawn,
// pipe wiring, exit observation and kill. The transport layered on top
// only sees the streams; supervision policy lives here and in the
// manager.
type ServerProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	done    chan struct{}
	waitErr error

	mu             sync.Mutex
	killed         bool
	lastStderrLine string
}

// SpawnServerProcess starts the configured command with stdin, stdout
// and stderr piped. The child environment is the shell's own
// environment overridden by the config's entries; the working directory
// is taken from the config when set.
func SpawnServerProcess(config *ServerConfig) (*ServerProcess, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.Command(config.Command, config.Args...)
	if config.WorkingDir != "" {
		cmd.Dir = config.WorkingDir
	}
	cmd.Env = os.Environ()
	for key, value := range config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", config.Command, err)
	}

	p := &ServerProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}

	go p.captureStderr(config.ID)
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// captureStderr drains the child's stderr so the pipe never fills,
// retaining the last line for status display.
func (p *ServerProcess) captureStderr(serverID string) {
	logger := log.WithComponent("mcp.process")
	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.lastStderrLine = line
		p.mu.Unlock()
		logger.Debug("server stderr", "server", serverID, "line", line)
	}
}

// PID returns the child's process id, or 0 if it never started.
func (p *ServerProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stdin is the child's standard input.
func (p *ServerProcess) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the child's standard output.
func (p *ServerProcess) Stdout() io.Reader { return p.stdout }

// LastStderrLine returns the most recent line the child wrote to
// stderr, for diagnostics.
func (p *ServerProcess) LastStderrLine() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStderrLine
}

// Done is closed once the child has exited.
func (p *ServerProcess) Done() <-chan struct{} { return p.done }

// Exited reports whether the child has already terminated.
func (p *ServerProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Kill terminates the child if it is still alive. It is idempotent and
// swallows termination errors: a process that already exited is not an
// error condition here.
func (p *ServerProcess) Kill() {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	p.mu.Unlock()

	if p.Exited() || p.cmd.Process == nil {
		return
	}
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
}
