package stage

import (
	"sync/atomic"
)

type Stage string

const (
	Init         Stage = "Init"         // The default stage of a freshly constructed registry
	Loading      Stage = "Loading"      // The registry is loading persisted shopkeepers from storage
	Running      Stage = "Running"      // The registry is accepting host events and user operations
	ShuttingDown Stage = "ShuttingDown" // The registry received a shutdown request and is draining
	ShutDown     Stage = "ShutDown"     // The registry has successfully shut down
)

type Manager struct {
	current *atomic.Value
}

func NewManager() *Manager {
	m := &Manager{
		current: &atomic.Value{},
	}
	m.Store(Init)
	return m
}

func (m *Manager) CompareAndSwap(oldStage, newStage Stage) (swapped bool) {
	return m.current.CompareAndSwap(oldStage, newStage)
}

func (m *Manager) Current() Stage {
	return m.current.Load().(Stage)
}

func (m *Manager) Store(val Stage) {
	m.current.Store(val)
}

func (m *Manager) Swap(newStage Stage) (oldStage Stage) {
	return m.current.Swap(newStage).(Stage)
}
