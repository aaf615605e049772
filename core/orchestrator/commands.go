package orchestrator

import "time"

// Command names accepted on the command channel.
const (
	CmdInitialize   = "initialize"
	CmdStart        = "start"
	CmdStop         = "stop"
	CmdRunCycle     = "run_cycle"
	CmdShutdown     = "shutdown"
	CmdResolveAlert = "resolve_alert"
)

// Command is one instruction for the dispatch loop.
type Command struct {
	Name    string          `json:"name"`
	Resolve *ResolveRequest `json:"resolve,omitempty"`
}

// ResolveRequest manually closes an open escalation alert.
type ResolveRequest struct {
	OrderID    string `json:"order_id"`
	Type       string `json:"type"`
	ResolvedBy string `json:"resolved_by"`
}

// Event names emitted on the event channel.
const (
	EvtInitialized      = "initialized"
	EvtStarted          = "started"
	EvtCycleComplete    = "cycle_complete"
	EvtCycleError       = "cycle_error"
	EvtStopped          = "stopped"
	EvtShutdownComplete = "shutdown_complete"
	EvtError            = "error"
)

// CycleResult summarizes one completed dispatch cycle. The JSON field names
// are consumed by external monitors and must not change.
type CycleResult struct {
	ActionsPlanned   int       `json:"actionsPlanned"`
	ActionsExecuted  int       `json:"actionsExecuted"`
	ActionsEscalated int       `json:"actionsEscalated"`
	DurationMs       int64     `json:"duration"`
	Timestamp        time.Time `json:"timestamp"`
}

// Event is one notification from the dispatch loop.
type Event struct {
	Name       string       `json:"name"`
	Timestamp  time.Time    `json:"timestamp"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	IntervalMs int64        `json:"intervalMs,omitempty"`
	DurationMs int64        `json:"durationMs,omitempty"`
	Result     *CycleResult `json:"result,omitempty"`
}
