package app

import (
	"sync"

	"datalens/domain/core"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/ports"
)

// SessionManager holds the live analysis sessions. Sessions are in-memory
// only; nothing survives process restart.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[core.SessionID]*Service
	cfg       *config.Config
	ingestion ports.IngestionPort
	reporter  ports.ReporterPort
	opts      []Option
}

// NewSessionManager creates an empty manager
func NewSessionManager(cfg *config.Config, ingestion ports.IngestionPort, reporter ports.ReporterPort, opts ...Option) *SessionManager {
	return &SessionManager{
		sessions:  make(map[core.SessionID]*Service),
		cfg:       cfg,
		ingestion: ingestion,
		reporter:  reporter,
		opts:      opts,
	}
}

// Create starts a new session and returns it
func (m *SessionManager) Create() *Service {
	svc := NewService(m.cfg, m.ingestion, m.reporter, m.opts...)
	m.mu.Lock()
	m.sessions[svc.ID] = svc
	m.mu.Unlock()
	return svc
}

// Get returns the session with the given ID
func (m *SessionManager) Get(id core.SessionID) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound("session " + id.String())
	}
	return svc, nil
}

// Drop removes a session
func (m *SessionManager) Drop(id core.SessionID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
