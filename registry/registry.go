// Package registry merges built-in handlers and bridged provider tools into
// one dispatchable namespace. It is the only surface the rest of the host
// calls for tool execution: every failure mode (timeout, protocol error,
// handler panic, unknown tool) comes back as an error-flagged ToolResult,
// never as a panic or an error crossing the boundary.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crosswire-ai/crosswire/core"
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultMaxResultLength = 50_000

	// truncationMarker terminates any result clipped to MaxResultLength.
	truncationMarker = "\n... [output truncated]"
)

// RemoteSource is the bridge contract the registry pulls provider tools from.
type RemoteSource interface {
	ListAll() []core.ToolDefinition
	Execute(ctx context.Context, providerID, toolName string, args map[string]any) (string, error)
}

// Config configures a Registry.
type Config struct {
	// Source supplies bridged provider tools. Optional; a nil source makes
	// the registry built-ins only.
	Source RemoteSource

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// CallTimeout bounds each dispatched call (default 30s).
	CallTimeout time.Duration

	// MaxResultLength truncates successful textual results (default 50000).
	MaxResultLength int
}

type builtinTool struct {
	def     core.ToolDefinition
	handler core.Handler
}

// Registry is the merged tool namespace. The remote snapshot refreshes on
// demand: the registry does not watch provider topology itself, the host
// calls Refresh after connects and disconnects.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]builtinTool
	remote   map[string]core.ToolDefinition

	source          RemoteSource
	logger          *slog.Logger
	callTimeout     time.Duration
	maxResultLength int
}

// New creates a registry with the given configuration.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxResultLength <= 0 {
		cfg.MaxResultLength = defaultMaxResultLength
	}
	return &Registry{
		builtins:        make(map[string]builtinTool),
		remote:          make(map[string]core.ToolDefinition),
		source:          cfg.Source,
		logger:          cfg.Logger,
		callTimeout:     cfg.CallTimeout,
		maxResultLength: cfg.MaxResultLength,
	}
}

// Register adds a built-in tool. Registering a name twice is rejected:
// built-in names are claimed first-wins and never silently replaced.
func (r *Registry) Register(def core.ToolDefinition, handler core.Handler) error {
	if def.Name == "" {
		return fmt.Errorf("registry: tool name is empty")
	}
	if handler == nil {
		return fmt.Errorf("registry: tool %q has no handler", def.Name)
	}
	def.Origin = core.Origin{Kind: core.OriginBuiltin}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[def.Name]; exists {
		return fmt.Errorf("registry: tool %q is already registered", def.Name)
	}
	r.builtins[def.Name] = builtinTool{def: def, handler: handler}
	return nil
}

// Refresh replaces the remote snapshot with the bridge's current view.
// A remote tool colliding with a built-in or with an earlier provider's
// tool is skipped: the earlier registration wins. Refresh with an unchanged
// catalog is idempotent.
func (r *Registry) Refresh() {
	if r.source == nil {
		return
	}
	start := time.Now()
	defs := r.source.ListAll()

	r.mu.Lock()

	skipped := 0
	providers := make(map[string]bool)
	snapshot := make(map[string]core.ToolDefinition, len(defs))
	for _, def := range defs {
		providers[def.Origin.ProviderID] = true
		if _, taken := r.builtins[def.Name]; taken {
			r.logger.Warn("skipping provider tool shadowed by built-in",
				"tool", def.Name, "provider", def.Origin.ProviderID)
			skipped++
			continue
		}
		if earlier, taken := snapshot[def.Name]; taken {
			r.logger.Warn("skipping provider tool shadowed by another provider",
				"tool", def.Name,
				"provider", def.Origin.ProviderID,
				"kept_provider", earlier.Origin.ProviderID)
			skipped++
			continue
		}
		snapshot[def.Name] = def
	}
	r.remote = snapshot
	r.mu.Unlock()

	core.EmitRefresh(core.RefreshObservation{
		Providers:  len(providers),
		Tools:      len(snapshot),
		Skipped:    skipped,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// List returns the merged namespace sorted by tool name.
func (r *Registry) List() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]core.ToolDefinition, 0, len(r.builtins)+len(r.remote))
	for _, bt := range r.builtins {
		defs = append(defs, bt.def)
	}
	for _, def := range r.remote {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute dispatches one call: built-ins first, then the remote snapshot.
// The handler races a per-call timeout; when the timeout wins, the handler's
// eventual completion is discarded, not forcibly cancelled.
func (r *Registry) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	r.mu.RLock()
	bt, isBuiltin := r.builtins[call.Name]
	def, isRemote := r.remote[call.Name]
	r.mu.RUnlock()

	observation := core.InvokeObservation{ToolName: call.Name}

	var run func(context.Context) (string, error)
	switch {
	case isBuiltin:
		observation.Origin = core.OriginBuiltin
		run = func(ctx context.Context) (string, error) {
			return bt.handler(ctx, call.Arguments)
		}
	case isRemote:
		observation.Origin = core.OriginProvider
		observation.ProviderID = def.Origin.ProviderID
		run = func(ctx context.Context) (string, error) {
			return r.source.Execute(ctx, def.Origin.ProviderID, def.Origin.RemoteName, call.Arguments)
		}
	default:
		err := core.NewToolError(core.ErrorCodeUnknownTool,
			fmt.Sprintf("unknown tool %q", call.Name), nil)
		observation.ErrorCode = core.ErrorCodeUnknownTool
		core.EmitInvoke(observation)
		return errorResult(call.ID, err)
	}

	start := time.Now()
	content, err := r.runWithTimeout(ctx, run)
	observation.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		observation.ErrorCode = core.ErrorCode(err, core.ErrorCodeExecutionFailed)
		core.EmitInvoke(observation)
		return errorResult(call.ID, err)
	}

	truncated := r.truncate(content)
	observation.Success = true
	observation.Truncated = len(truncated) != len(content)
	core.EmitInvoke(observation)
	return core.ToolResult{
		ID:      call.ID,
		Content: truncated,
	}
}

// ExecuteAll dispatches every call concurrently and returns results in call
// order. A failure in one call never affects its siblings.
func (r *Registry) ExecuteAll(ctx context.Context, calls []core.ToolCall) []core.ToolResult {
	results := make([]core.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call core.ToolCall) {
			defer wg.Done()
			results[i] = r.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

type callOutcome struct {
	content string
	err     error
}

// runWithTimeout races the handler against the per-call timeout through a
// single buffered result slot; whichever resolves first wins and the loser
// is discarded.
func (r *Registry) runWithTimeout(ctx context.Context, run func(context.Context) (string, error)) (string, error) {
	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- callOutcome{err: core.NewToolError(core.ErrorCodeExecutionFailed,
					fmt.Sprintf("handler panicked: %v", rec), nil)}
			}
		}()
		content, err := run(ctx)
		if err != nil {
			var terr *core.ToolError
			if !errors.As(err, &terr) {
				err = core.NewToolError(core.ErrorCodeExecutionFailed, "", err)
			}
		}
		done <- callOutcome{content: content, err: err}
	}()

	timer := time.NewTimer(r.callTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.content, out.err
	case <-timer.C:
		return "", core.NewToolError(core.ErrorCodeTimeout,
			fmt.Sprintf("tool call timed out after %s", r.callTimeout), nil)
	case <-ctx.Done():
		return "", core.NewToolError(core.ErrorCodeExecutionFailed,
			"call context cancelled", ctx.Err())
	}
}

// truncate clips successful content at MaxResultLength with an explicit end
// marker, regardless of origin.
func (r *Registry) truncate(content string) string {
	if len(content) <= r.maxResultLength {
		return content
	}
	return content[:r.maxResultLength] + truncationMarker
}

func errorResult(callID string, err error) core.ToolResult {
	return core.ToolResult{
		ID:      callID,
		Content: err.Error(),
		IsError: true,
	}
}
