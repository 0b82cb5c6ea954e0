package provider

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/crosswire-ai/crosswire/rpc"
)

// maxLineBytes bounds one protocol line read from a provider's stdout.
const maxLineBytes = 4 * 1024 * 1024

// process is one live child owned by exactly one provider entry. The entry's
// handle lifetime is strictly shorter than the entry's own: spawned on
// connect, killed on disconnect or close.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	// done is closed once the child has been reaped.
	done chan struct{}
}

// spawn starts the configured command with stdio pipes attached. Each
// complete stdout line parsed as a JSON object is handed to onMessage; lines
// that fail to parse are logged as stray output and otherwise ignored.
// onExit fires exactly once, after the child has been reaped, and receives
// the process handle so the caller can tell a stale exit from a current one.
func spawn(cfg Config, logger *slog.Logger, onMessage func(rpc.Message), onExit func(*process, error)) (*process, error) {
	args := slices.Clone(cfg.Args)
	// #nosec G204 -- command/args pass guard validation immediately before spawn.
	cmd := exec.Command(cfg.Command, args...)
	cmd.Env = append(os.Environ(), flattenEnv(cfg.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("provider: open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("provider: open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("provider: open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("provider: start %q: %w", cfg.Command, err)
	}

	p := &process{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)

	go func() {
		defer readers.Done()
		p.readLoop(stdout, cfg.ID, logger, onMessage)
	}()
	go func() {
		defer readers.Done()
		p.logStderr(stderr, cfg.ID, logger)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		close(p.done)
		onExit(p, err)
	}()

	return p, nil
}

// readLoop parses one JSON object per line from the child's stdout.
func (p *process) readLoop(stdout io.Reader, providerID string, logger *slog.Logger, onMessage func(rpc.Message)) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var message rpc.Message
		if err := json.Unmarshal([]byte(line), &message); err != nil {
			logger.Warn("discarding stray provider output",
				"provider", providerID,
				"line", clipForLog(line),
				"error", err)
			continue
		}
		onMessage(message)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("provider stdout closed", "provider", providerID, "error", err)
	}
}

// logStderr drains the child's free-text log stream. Stderr is never
// protocol-parsed.
func (p *process) logStderr(stderr io.Reader, providerID string, logger *slog.Logger) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Debug("provider stderr", "provider", providerID, "line", clipForLog(line))
		}
	}
}

// writeLine serializes one message as a single line on the child's stdin.
// Writes are serialized so concurrent requests cannot interleave.
func (p *process) writeLine(message rpc.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("provider: encode request: %w", err)
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("provider: write request: %w", err)
	}
	return nil
}

// kill closes stdin and forcibly terminates the child. Reaping is observed
// via done.
func (p *process) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// alive reports whether the child has not yet been reaped.
func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}

func clipForLog(line string) string {
	const max = 256
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}
