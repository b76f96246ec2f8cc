package model

// WorkerState is the lifecycle of a worker unit.
type WorkerState int32

const (
	WorkerSpawned WorkerState = iota
	WorkerSubscribing
	WorkerReady
	WorkerRunning
	WorkerStopping
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerSpawned:
		return "spawned"
	case WorkerSubscribing:
		return "subscribing"
	case WorkerReady:
		return "ready"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerTerminated:
		return "terminated"
	}
	return "unknown"
}

// SystemState is the lifecycle of the whole pipeline.
type SystemState int32

const (
	SystemIdle SystemState = iota
	SystemStarting
	SystemRunning
	SystemStopping
)

func (s SystemState) String() string {
	switch s {
	case SystemIdle:
		return "idle"
	case SystemStarting:
		return "starting"
	case SystemRunning:
		return "running"
	case SystemStopping:
		return "stopping"
	}
	return "unknown"
}
