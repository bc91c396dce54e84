package server

import "net"

// ListenerForTest returns the bound listener, or nil when stopped.
func (m *Manager) ListenerForTest() net.Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener
}
