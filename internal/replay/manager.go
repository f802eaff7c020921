package replay

import (
	"sync"
	"time"
)

// Manager owns at most one live controller, keyed by the trace currently
// selected for inspection. Selecting a different trace disposes the old
// controller (cancelling its timer) and hands out a fresh one in the initial
// state; re-selecting the same trace keeps the existing controller and its
// position.
type Manager struct {
	mu       sync.Mutex
	traceID  string
	ctrl     *Controller
	interval time.Duration
}

func NewManager(interval time.Duration) *Manager {
	return &Manager{interval: interval}
}

// Select returns the controller for traceID, creating (and resetting) one if
// a different trace was selected before. max is the trace's max_sequence.
func (m *Manager) Select(traceID string, max int) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctrl != nil && m.traceID == traceID {
		return m.ctrl
	}
	if m.ctrl != nil {
		m.ctrl.Close()
	}
	m.traceID = traceID
	m.ctrl = NewController(max, m.interval, nil)
	return m.ctrl
}

// Current returns the selected trace's controller, if any.
func (m *Manager) Current(traceID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctrl == nil || m.traceID != traceID {
		return nil, false
	}
	return m.ctrl, true
}

// Deselect destroys the live controller.
func (m *Manager) Deselect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctrl != nil {
		m.ctrl.Close()
		m.ctrl = nil
		m.traceID = ""
	}
}
