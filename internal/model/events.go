package model

// EventType names one of the NATS subjects / in-process events from
// spec.md §6 "Events emitted".
type EventType string

const (
	EventWaveStarted       EventType = "wave:started"
	EventWaveCompleted     EventType = "wave:completed"
	EventTaskStarted       EventType = "task:started"
	EventTaskCompleted     EventType = "task:completed"
	EventTaskFailed        EventType = "task:failed"
	EventWorkerHeartbeat   EventType = "worker:heartbeat"
	EventWorkerStalled     EventType = "worker:stalled"
	EventExecutionBlocked  EventType = "execution:blocked"
	EventConflictDetected  EventType = "conflict:detected"
	EventConflictResolved  EventType = "conflict:auto-resolved"
)

// Event is the envelope published on every subject; Payload is one of the
// *Payload structs below, chosen by Type.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

type WaveStartedPayload struct {
	ExecutionID string `json:"executionId"`
	WaveNumber  int    `json:"waveNumber"`
	TaskCount   int    `json:"taskCount"`
}

type WaveCompletedPayload struct {
	ExecutionID string `json:"executionId"`
	WaveNumber  int    `json:"waveNumber"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
}

type TaskStartedPayload struct {
	TaskID     string `json:"taskId"`
	WorkerID   string `json:"workerId"`
	WaveNumber int    `json:"waveNumber"`
}

type TaskCompletedPayload struct {
	TaskID     string `json:"taskId"`
	DurationMs int64  `json:"durationMs"`
}

type TaskFailedPayload struct {
	TaskID  string `json:"taskId"`
	Reason  string `json:"reason"`
	Attempt int    `json:"attempt"`
}

type WorkerHeartbeatPayload struct {
	WorkerID  string  `json:"workerId"`
	TaskID    string  `json:"taskId,omitempty"`
	Progress  float64 `json:"progress"`
	AgeSecond float64 `json:"ageSeconds"`
}

type WorkerStalledPayload struct {
	WorkerID         string `json:"workerId"`
	TaskID           string `json:"taskId"`
	LastHeartbeatAt  int64  `json:"lastHeartbeatAt"`
}

type ExecutionBlockedPayload struct {
	TaskListID      string `json:"taskListId"`
	IncompleteCount int    `json:"incompleteCount"`
	Threshold       float64 `json:"threshold"`
}

type ConflictDetectedPayload struct {
	PairA string         `json:"pairA"`
	PairB string         `json:"pairB"`
	Type  ConflictType   `json:"type"`
	Files []FileConflict `json:"files,omitempty"`
}

type ConflictAutoResolvedPayload struct {
	PairA     string `json:"pairA"`
	PairB     string `json:"pairB"`
	Direction string `json:"direction"`
}
