package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crosswire-ai/crosswire/bus"
	"github.com/crosswire-ai/crosswire/core"
	"github.com/crosswire-ai/crosswire/rpc"
)

const (
	defaultProtocolVersion  = "2025-06-18"
	defaultClientName       = "crosswire"
	defaultClientVersion    = "dev"
	defaultRequestTimeout   = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// State is the connection state of one provider entry.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// String returns the string representation of the State.
func (s State) String() string {
	return string(s)
}

// ErrProviderNotFound is returned for operations on an unknown provider id.
var ErrProviderNotFound = errors.New("provider: not found")

// SupervisorConfig configures a Supervisor instance.
type SupervisorConfig struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Bus receives lifecycle events. Optional.
	Bus bus.EventBus

	// RequestTimeout bounds each outbound request (default 30s, override
	// via CROSSWIRE_REQUEST_TIMEOUT seconds).
	RequestTimeout time.Duration

	// HandshakeTimeout bounds the initialize/tools-list exchange on connect
	// (default 10s).
	HandshakeTimeout time.Duration

	// ProtocolVersion and ClientInfo identify this client in the handshake.
	ProtocolVersion string
	ClientInfo      rpc.ClientInfo
}

// Supervisor owns every configured provider entry: at most one live process
// per provider id, that process's pipes, and the pending-request map used to
// correlate responses by request id.
type Supervisor struct {
	mu      sync.Mutex
	entries map[string]*entry

	logger           *slog.Logger
	bus              bus.EventBus
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	protocolVersion  string
	clientInfo       rpc.ClientInfo
}

// Info is a point-in-time view of one provider entry.
type Info struct {
	Config    Config
	State     State
	ToolCount int
}

// outcome is the terminal result of one pending request.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest correlates an outbound request id to its completion slot.
// Exactly one of {matching response, timeout, process close} delivers the
// outcome; delivery happens at most once because entries are removed from
// the pending map under the entry lock before the send.
type pendingRequest struct {
	ch    chan outcome
	timer *time.Timer
}

// entry is the runtime record for one configured provider. It exclusively
// owns its process handle and pending map; neither is ever shared across
// entries.
type entry struct {
	mu            sync.Mutex
	config        Config
	state         State
	proc          *process
	tools         []rpc.RemoteTool
	pending       map[int64]*pendingRequest
	nextRequestID int64
}

// NewSupervisor creates a supervisor with the given configuration.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = configuredRequestTimeout()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = defaultProtocolVersion
	}
	if cfg.ClientInfo.Name == "" {
		cfg.ClientInfo.Name = defaultClientName
	}
	if cfg.ClientInfo.Version == "" {
		cfg.ClientInfo.Version = defaultClientVersion
	}

	return &Supervisor{
		entries:          make(map[string]*entry),
		logger:           cfg.Logger,
		bus:              cfg.Bus,
		requestTimeout:   cfg.RequestTimeout,
		handshakeTimeout: cfg.HandshakeTimeout,
		protocolVersion:  cfg.ProtocolVersion,
		clientInfo:       cfg.ClientInfo,
	}
}

// Add registers a provider configuration. The launch tuple is validated
// here; it is validated again immediately before every spawn.
func (s *Supervisor) Add(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return core.NewToolError(core.ErrorCodeConfigRejected, "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[cfg.ID]; exists {
		return fmt.Errorf("provider: %q is already registered", cfg.ID)
	}
	s.entries[cfg.ID] = &entry{
		config:  cfg.clone(),
		state:   StateDisconnected,
		pending: make(map[int64]*pendingRequest),
	}
	return nil
}

// Remove disconnects the provider if needed and deletes its entry.
func (s *Supervisor) Remove(ctx context.Context, providerID string) error {
	if err := s.Disconnect(ctx, providerID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, providerID)
	return nil
}

// Connect spawns the provider process, performs the initialize handshake,
// and caches the remote tool catalog. Connecting an already connected
// provider is a no-op. A failed attempt leaves the entry disconnected and
// never half-connected.
func (s *Supervisor) Connect(ctx context.Context, providerID string) error {
	e, err := s.entry(providerID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.state == StateConnected && e.proc != nil && e.proc.alive() {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateConnecting {
		e.mu.Unlock()
		return core.NewToolError(core.ErrorCodeTransportFailure,
			fmt.Sprintf("provider %q connect already in progress", providerID), nil)
	}
	cfg := e.config.clone()
	e.state = StateConnecting
	e.mu.Unlock()

	// Defense in depth: the config may have been edited since Add.
	if err := cfg.Validate(); err != nil {
		terr := core.NewToolError(core.ErrorCodeConfigRejected, "", err)
		s.abortConnect(e, nil, terr.Error())
		return terr
	}

	proc, err := spawn(cfg, s.logger,
		func(message rpc.Message) { s.handleMessage(e, message) },
		func(p *process, exitErr error) { s.handleExit(e, p, exitErr) })
	if err != nil {
		terr := core.NewToolError(core.ErrorCodeTransportFailure, "", err)
		s.abortConnect(e, nil, terr.Error())
		return terr
	}

	e.mu.Lock()
	e.proc = proc
	e.mu.Unlock()

	hctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	var initResult rpc.InitializeResult
	raw, err := s.Send(hctx, providerID, rpc.MethodInitialize, rpc.InitializeParams{
		ProtocolVersion: s.protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      s.clientInfo,
	})
	if err == nil {
		err = json.Unmarshal(raw, &initResult)
	}
	if err != nil {
		terr := core.NewToolError(core.ErrorCodeTransportFailure,
			fmt.Sprintf("provider %q handshake failed", providerID), err)
		s.abortConnect(e, proc, terr.Error())
		return terr
	}

	var toolsResult rpc.ToolsListResult
	raw, err = s.Send(hctx, providerID, rpc.MethodToolsList, map[string]any{})
	if err == nil {
		err = json.Unmarshal(raw, &toolsResult)
	}
	if err != nil {
		terr := core.NewToolError(core.ErrorCodeTransportFailure,
			fmt.Sprintf("provider %q tool discovery failed", providerID), err)
		s.abortConnect(e, proc, terr.Error())
		return terr
	}

	e.mu.Lock()
	if e.proc != proc {
		// The process died between discovery and now; handleExit already
		// reset the entry.
		e.mu.Unlock()
		return core.NewToolError(core.ErrorCodeDisconnected,
			fmt.Sprintf("provider %q process closed during connect", providerID), nil)
	}
	e.tools = toolsResult.Tools
	e.state = StateConnected
	e.mu.Unlock()

	s.logger.Info("provider connected",
		"provider", providerID,
		"server", initResult.ServerInfo.Name,
		"tools", len(toolsResult.Tools))
	s.publish(bus.NewEvent(bus.EventProviderConnected, providerID, ""))
	return nil
}

// Disconnect kills the provider process if one is alive, rejects every
// pending request with a uniform disconnection failure, and clears the tool
// cache. It is idempotent.
func (s *Supervisor) Disconnect(ctx context.Context, providerID string) error {
	e, err := s.entry(providerID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	proc := e.proc
	wasDisconnected := e.state == StateDisconnected && proc == nil
	e.proc = nil
	e.state = StateDisconnected
	e.tools = nil
	e.failAllPendingLocked(core.NewToolError(core.ErrorCodeDisconnected,
		fmt.Sprintf("provider %q disconnected", providerID), nil))
	e.mu.Unlock()

	if wasDisconnected {
		return nil
	}

	if proc != nil {
		proc.kill()
		select {
		case <-proc.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info("provider disconnected", "provider", providerID)
	s.publish(bus.NewEvent(bus.EventProviderDisconnected, providerID, ""))
	return nil
}

// Shutdown disconnects every provider and waits for each child to be
// reaped. Hosts must await this before exiting or children are orphaned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var errs []error
	for _, providerID := range s.IDs() {
		if err := s.Disconnect(ctx, providerID); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %q: %w", providerID, err))
		}
	}
	return errors.Join(errs...)
}

// Send issues one JSON-RPC request on the provider's stdin and waits for the
// response correlated by request id, the per-request timeout, or process
// close, whichever happens first. Responses may arrive in any order;
// correlation is exclusively by id.
func (s *Supervisor) Send(ctx context.Context, providerID, method string, params any) (json.RawMessage, error) {
	e, err := s.entry(providerID)
	if err != nil {
		return nil, err
	}

	raw, err := rpc.MarshalParams(params)
	if err != nil {
		return nil, core.NewToolError(core.ErrorCodeTransportFailure, "", err)
	}

	e.mu.Lock()
	proc := e.proc
	if proc == nil || !proc.alive() {
		e.mu.Unlock()
		return nil, core.NewToolError(core.ErrorCodeTransportFailure,
			fmt.Sprintf("provider %q has no live process", providerID), nil)
	}
	e.nextRequestID++
	id := e.nextRequestID
	pr := &pendingRequest{ch: make(chan outcome, 1)}
	e.pending[id] = pr
	pr.timer = time.AfterFunc(s.requestTimeout, func() {
		e.resolvePending(id, outcome{err: core.NewToolError(core.ErrorCodeTimeout,
			fmt.Sprintf("request %d (%s) to provider %q timed out after %s",
				id, method, providerID, s.requestTimeout), nil)})
	})
	e.mu.Unlock()

	message := rpc.Message{
		JSONRPC: rpc.Version,
		ID:      id,
		Method:  method,
		Params:  raw,
	}
	if err := proc.writeLine(message); err != nil {
		e.abandonPending(id)
		return nil, core.NewToolError(core.ErrorCodeTransportFailure, "", err)
	}

	select {
	case <-ctx.Done():
		// Abandons interest only; the remote side may still do the work.
		e.abandonPending(id)
		return nil, ctx.Err()
	case out := <-pr.ch:
		return out.result, out.err
	}
}

// Tools returns the cached tool catalog snapshot for a provider.
func (s *Supervisor) Tools(providerID string) ([]rpc.RemoteTool, error) {
	e, err := s.entry(providerID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.tools), nil
}

// StateOf returns the connection state for a provider.
func (s *Supervisor) StateOf(providerID string) (State, error) {
	e, err := s.entry(providerID)
	if err != nil {
		return StateDisconnected, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// IDs returns all registered provider ids in sorted order.
func (s *Supervisor) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// List returns a point-in-time view of every entry, sorted by id.
func (s *Supervisor) List() []Info {
	infos := make([]Info, 0)
	for _, id := range s.IDs() {
		e, err := s.entry(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		infos = append(infos, Info{
			Config:    e.config.clone(),
			State:     e.state,
			ToolCount: len(e.tools),
		})
		e.mu.Unlock()
	}
	return infos
}

// ConnectedTools returns the cached catalogs of currently connected
// providers keyed by provider id. Disconnected providers do not appear.
func (s *Supervisor) ConnectedTools() map[string][]rpc.RemoteTool {
	out := make(map[string][]rpc.RemoteTool)
	for _, id := range s.IDs() {
		e, err := s.entry(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if e.state == StateConnected {
			out[id] = slices.Clone(e.tools)
		}
		e.mu.Unlock()
	}
	return out
}

func (s *Supervisor) entry(providerID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, providerID)
	}
	return e, nil
}

// handleMessage routes one parsed stdout line. Responses resolve their
// pending request by id; anything else is ignored.
func (s *Supervisor) handleMessage(e *entry, message rpc.Message) {
	if !message.IsResponse() {
		s.logger.Debug("ignoring non-response provider message",
			"provider", e.config.ID, "method", message.Method)
		return
	}

	out := outcome{result: message.Result}
	if message.Error != nil {
		out = outcome{err: core.NewToolError(core.ErrorCodeProtocolFailure,
			message.Error.Message, message.Error)}
	}
	e.resolvePending(message.ID, out)
}

// handleExit reacts to unsolicited process termination. A stale exit (the
// entry already owns a different process, or none) has no effect.
func (s *Supervisor) handleExit(e *entry, proc *process, exitErr error) {
	e.mu.Lock()
	if e.proc != proc {
		e.mu.Unlock()
		return
	}
	wasConnected := e.state == StateConnected
	e.proc = nil
	e.state = StateDisconnected
	e.tools = nil

	detail := "provider process closed"
	if exitErr != nil {
		detail = fmt.Sprintf("provider process error: %v", exitErr)
	}
	e.failAllPendingLocked(core.NewToolError(core.ErrorCodeDisconnected, detail, exitErr))
	e.mu.Unlock()

	s.logger.Warn("provider process exited unexpectedly",
		"provider", e.config.ID, "error", exitErr)
	if wasConnected {
		s.publish(bus.NewEvent(bus.EventProviderDisconnected, e.config.ID, detail))
	}
}

// abortConnect resets the entry after a failed connect attempt, killing the
// just-spawned process when there is one.
func (s *Supervisor) abortConnect(e *entry, proc *process, detail string) {
	e.mu.Lock()
	if proc != nil && e.proc == proc {
		e.proc = nil
	}
	e.state = StateDisconnected
	e.tools = nil
	e.failAllPendingLocked(core.NewToolError(core.ErrorCodeDisconnected,
		"connect aborted", nil))
	e.mu.Unlock()

	if proc != nil {
		proc.kill()
		<-proc.done
	}

	s.logger.Warn("provider connect failed", "provider", e.config.ID, "detail", detail)
	s.publish(bus.NewEvent(bus.EventProviderFailed, e.config.ID, detail))
}

func (s *Supervisor) publish(event bus.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event)
}

// resolvePending delivers the terminal outcome for one request id. Removal
// happens under the entry lock, so a request resolves at most once; an id
// with no pending entry is discarded without effect.
func (e *entry) resolvePending(id int64, out outcome) {
	e.mu.Lock()
	pr, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
		if pr.timer != nil {
			pr.timer.Stop()
		}
	}
	e.mu.Unlock()

	if ok {
		pr.ch <- out
	}
}

// abandonPending removes a request without delivering an outcome (caller
// gave up on the result).
func (e *entry) abandonPending(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pr, ok := e.pending[id]; ok {
		delete(e.pending, id)
		if pr.timer != nil {
			pr.timer.Stop()
		}
	}
}

// failAllPendingLocked rejects every pending request with the same error.
// Callers must hold e.mu.
func (e *entry) failAllPendingLocked(err error) {
	for id, pr := range e.pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.ch <- outcome{err: err}
		delete(e.pending, id)
	}
}

func configuredRequestTimeout() time.Duration {
	raw := strings.TrimSpace(os.Getenv("CROSSWIRE_REQUEST_TIMEOUT"))
	if raw == "" {
		return defaultRequestTimeout
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(seconds) * time.Second
}
