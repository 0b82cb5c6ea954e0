package core

import "sync"

// InvokeObservation captures one tool invocation outcome.
type InvokeObservation struct {
	ToolName   string
	Origin     OriginKind
	ProviderID string
	DurationMS int64
	Success    bool
	Truncated  bool
	ErrorCode  string
}

// RefreshObservation captures one catalog refresh outcome.
type RefreshObservation struct {
	Providers  int
	Tools      int
	Skipped    int
	DurationMS int64
}

// HealthObservation captures one provider health-check outcome.
type HealthObservation struct {
	ProviderID string
	Healthy    bool
	Failures   int
	DurationMS int64
	ErrorCode  string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveInvoke(observation InvokeObservation)
	ObserveRefresh(observation RefreshObservation)
	ObserveHealth(observation HealthObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(InvokeObservation)   {}
func (noopObserver) ObserveRefresh(RefreshObservation) {}
func (noopObserver) ObserveHealth(HealthObservation)   {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide observability observer. Passing nil
// restores the no-op observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

// EmitInvoke forwards an invocation observation to the active observer.
func EmitInvoke(observation InvokeObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveInvoke(observation)
}

// EmitRefresh forwards a refresh observation to the active observer.
func EmitRefresh(observation RefreshObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveRefresh(observation)
}

// EmitHealth forwards a health observation to the active observer.
func EmitHealth(observation HealthObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveHealth(observation)
}
