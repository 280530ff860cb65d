package server

import (
	"context"
	"sort"
	"sync"

	"codepad/internal/playground/view"
	appErr "codepad/pkg/errors"
	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ViewFactory builds an unmounted view for a new session.
type ViewFactory func(id string, listener view.Listener) *view.View

// SessionManager owns the mounted views, one per session.
type SessionManager struct {
	factory     ViewFactory
	hub         *Hub
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*view.View
}

// NewSessionManager creates a manager. maxSessions 0 means unlimited.
func NewSessionManager(factory ViewFactory, hub *Hub, maxSessions int) *SessionManager {
	return &SessionManager{
		factory:     factory,
		hub:         hub,
		maxSessions: maxSessions,
		sessions:    make(map[string]*view.View),
	}
}

// Create mounts a new view and returns its session id.
func (m *SessionManager) Create(ctx context.Context) (string, *view.View, error) {
	id := uuid.NewString()

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return "", nil, appErr.New(appErr.TooManyRequests).WithMessage("too many open sessions")
	}
	var listener view.Listener
	if m.hub != nil {
		listener = m.hub.Listener(id)
	}
	v := m.factory(id, listener)
	m.sessions[id] = v
	m.mu.Unlock()

	ctx = context.WithValue(ctx, contextkey.SessionID, id)
	if err := v.Mount(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return "", nil, err
	}
	logger.Info(ctx, "session created")
	return id, v, nil
}

// Get returns the view of a session.
func (m *SessionManager) Get(id string) (*view.View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.sessions[id]
	if !ok {
		return nil, appErr.New(appErr.SessionNotFound).WithDetail("session_id", id)
	}
	return v, nil
}

// Delete unmounts and forgets a session.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	v, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return appErr.New(appErr.SessionNotFound).WithDetail("session_id", id)
	}
	ctx = context.WithValue(ctx, contextkey.SessionID, id)
	v.Unmount(ctx)
	if m.hub != nil {
		m.hub.CloseSession(id)
	}
	logger.Info(ctx, "session deleted")
	return nil
}

// IDs lists open sessions in a stable order.
func (m *SessionManager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close unmounts every session.
func (m *SessionManager) Close(ctx context.Context) {
	for _, id := range m.IDs() {
		if err := m.Delete(ctx, id); err != nil {
			logger.Warn(ctx, "close session failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}
