// Package stdio implements the local-process transport: the provider is
// spawned as a subprocess and framed JSON-RPC messages travel over its
// stdin/stdout, one message per line.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "stdio")

// ErrUnsupportedServerType is returned for server files that are neither
// JavaScript nor Python.
var ErrUnsupportedServerType = errors.New("unsupported server file type: must be .js, .mjs, or .py")

const maxFrameSize = 4 * 1024 * 1024

// closeGrace bounds how long Close waits for the provider to exit on
// its own after stdin is closed before it is killed.
const closeGrace = 3 * time.Second

// CommandFor infers the interpreter for a provider server file from its
// extension: node for .js/.mjs, python for .py.
func CommandFor(serverPath string) (string, error) {
	switch strings.ToLower(filepath.Ext(serverPath)) {
	case ".js", ".mjs":
		return "node", nil
	case ".py":
		return "python", nil
	}
	return "", errors.WithStack(ErrUnsupportedServerType)
}

// Transport runs a provider subprocess and exchanges newline-delimited
// JSON-RPC messages with it.
type Transport struct {
	serverPath string
	args       []string

	mu             sync.Mutex
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	readDone       chan struct{}
	closed         bool
	messageHandler func(ctx context.Context, message *transport.Message)
	errorHandler   func(error)
	closeHandler   func()
}

// New creates a stdio transport for the given provider server file. The
// file must exist and have a supported extension.
func New(serverPath string, args ...string) (*Transport, error) {
	if _, err := os.Stat(serverPath); err != nil {
		return nil, errors.Wrapf(err, "server file not found: %s", serverPath)
	}
	if _, err := CommandFor(serverPath); err != nil {
		return nil, err
	}
	return &Transport{
		serverPath: serverPath,
		args:       args,
	}, nil
}

// Start spawns the subprocess and begins reading its stdout.
func (t *Transport) Start(ctx context.Context) error {
	command, err := CommandFor(t.serverPath)
	if err != nil {
		return err
	}

	// The process outlives the start context; its lifetime is bound to
	// Close, not to the connect call.
	cmd := exec.Command(command, append([]string{t.serverPath}, t.args...)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start provider process: %s", command)
	}

	readDone := make(chan struct{})
	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.readDone = readDone
	t.mu.Unlock()

	go t.readLoop(ctx, stdout, readDone)
	go t.drainStderr(stderr)
	return nil
}

func (t *Transport) readLoop(ctx context.Context, stdout io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := transport.Decode(line)
		if err != nil {
			t.reportError(errors.WithMessage(err, "discarding malformed frame"))
			continue
		}

		t.mu.Lock()
		handler := t.messageHandler
		t.mu.Unlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		t.reportError(errors.Wrap(err, "provider stdout read failed"))
	}
	t.notifyClosed()
}

func (t *Transport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.KV(xlog.DEBUG, "provider_stderr", scanner.Text())
	}
}

// Send writes one message to the subprocess, newline-terminated.
func (t *Transport) Send(ctx context.Context, message *transport.Message) error {
	bs, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin == nil || t.closed {
		return errors.New("transport not started or already closed")
	}
	if _, err := t.stdin.Write(append(bs, '\n')); err != nil {
		return errors.Wrap(err, "failed to write to provider stdin")
	}
	return nil
}

// Close closes stdin and waits for the subprocess to exit. A provider
// that ignores stdin EOF is killed after a grace period.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stdin := t.stdin
	cmd := t.cmd
	readDone := t.readDone
	t.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		// Closing stdin signals the provider to shut down; most do.
		// cmd.Wait must not run until the stdout pipe is drained, so
		// wait for the read loop to finish first.
		select {
		case <-readDone:
		case <-time.After(closeGrace):
			logger.KV(xlog.WARNING, "status", "provider_kill", "reason", "shutdown timeout")
			_ = cmd.Process.Kill()
			<-readDone
		}
		if err := cmd.Wait(); err != nil {
			logger.KV(xlog.DEBUG, "status", "provider_exit", "err", err.Error())
		}
	}
	t.notifyClosed()
	return nil
}

func (t *Transport) notifyClosed() {
	t.mu.Lock()
	handler := t.closeHandler
	t.closeHandler = nil
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (t *Transport) reportError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// SetMessageHandler implements transport.Transport.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements transport.Transport.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

var _ transport.Transport = (*Transport)(nil)
