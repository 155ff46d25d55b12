package debugger

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/pkg/types"
)

const (
	defaultEventHistory = 200
	// rebuildQuietPeriod collapses the burst of writes a linker produces
	rebuildQuietPeriod = time.Second
)

// RecordedEvent is an event in a session's history
type RecordedEvent struct {
	Seq   int   `json:"seq"`
	Event Event `json:"event"`
}

// Session is a Debugger registered with a SessionManager
type Session struct {
	ID        string
	Debugger  *Debugger
	CreatedAt time.Time

	mu         sync.RWMutex
	lastActive time.Time
	history    []RecordedEvent
	limit      int
	seq        int
	watcher    *fsnotify.Watcher
}

// Touch marks the session as in use
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns when the session was last used
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.history = append(s.history, RecordedEvent{Seq: s.seq, Event: ev})
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// Events returns the recorded events with a sequence number above since
func (s *Session) Events(since int) []RecordedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RecordedEvent, 0, len(s.history))
	for _, ev := range s.history {
		if ev.Seq > since {
			out = append(out, ev)
		}
	}
	return out
}

// GetInfo returns a summary of the session
func (s *Session) GetInfo() types.SessionInfo {
	return types.SessionInfo{
		SessionID:  s.ID,
		Status:     s.Debugger.Status(),
		PID:        s.Debugger.PID(),
		Program:    s.Debugger.Program(),
		GDBVersion: s.Debugger.Version(),
	}
}

// watch reports rebuilds of program as output events. The directory is watched
// because linkers usually replace the file rather than rewrite it.
func (s *Session) watch(program string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(program)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		var last time.Time
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if time.Since(last) < rebuildQuietPeriod {
					continue
				}
				last = time.Now()
				s.record(Event{
					Type:     EventOutput,
					Time:     last,
					Category: CategoryConsole,
					Text:     fmt.Sprintf("%s changed on disk; restart the session to debug the new build\n", program),
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Warning: watching %s: %v", program, err)
			}
		}
	}()
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			log.Printf("Warning: failed to stop program watch for session %s: %v", s.ID, err)
		}
	}
	if err := s.Debugger.Close(); err != nil {
		log.Printf("Warning: failed to close gdb for session %s: %v (continuing cleanup)", s.ID, err)
	}
}

// ManagerOptions configures a SessionManager
type ManagerOptions struct {
	MaxSessions    int
	SessionTimeout time.Duration
	EventHistory   int
	// WatchProgram reports rebuilds of the debugged executable
	WatchProgram bool
}

// SessionManager manages multiple debug sessions
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	opts ManagerOptions

	stop chan struct{}
	once sync.Once
}

// NewSessionManager creates a session manager and starts the idle-session sweep
func NewSessionManager(opts ManagerOptions) *SessionManager {
	if opts.EventHistory <= 0 {
		opts.EventHistory = defaultEventHistory
	}
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		opts:     opts,
		stop:     make(chan struct{}),
	}

	if opts.SessionTimeout > 0 {
		go sm.cleanupLoop()
	}

	return sm
}

// cleanupLoop periodically closes idle sessions
func (sm *SessionManager) cleanupLoop() {
	interval := time.Minute
	if sm.opts.SessionTimeout < 4*interval {
		interval = sm.opts.SessionTimeout / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions(time.Now())
		}
	}
}

// cleanupExpiredSessions closes sessions idle for longer than the timeout
func (sm *SessionManager) cleanupExpiredSessions(now time.Time) {
	sm.mu.Lock()
	var expired []*Session
	for id, session := range sm.sessions {
		if now.Sub(session.LastActive()) > sm.opts.SessionTimeout {
			expired = append(expired, session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range expired {
		log.Printf("Warning: closing session %s after %s idle", session.ID, sm.opts.SessionTimeout)
		session.close()
	}
}

// CreateSession registers a new debugger for program. gdb is not started here.
func (sm *SessionManager) CreateSession(program string, opts Options) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.opts.MaxSessions > 0 && len(sm.sessions) >= sm.opts.MaxSessions {
		return nil, errors.SessionLimitReached(sm.opts.MaxSessions)
	}

	now := time.Now()
	session := &Session{
		ID:         uuid.New().String(),
		Debugger:   New(opts),
		CreatedAt:  now,
		lastActive: now,
		limit:      sm.opts.EventHistory,
	}
	session.Debugger.SetEventHandler(session.record)

	if sm.opts.WatchProgram && program != "" {
		if err := session.watch(program); err != nil {
			log.Printf("Warning: cannot watch %s for rebuilds: %v", program, err)
		}
	}

	sm.sessions[session.ID] = session
	return session, nil
}

// GetSession retrieves a session by ID and marks it active
func (sm *SessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	session, ok := sm.sessions[id]
	sm.mu.RUnlock()

	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	session.Touch()
	return session, nil
}

// ListSessions returns all active sessions
func (sm *SessionManager) ListSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// TerminateSession stops gdb and removes the session
func (sm *SessionManager) TerminateSession(id string) error {
	sm.mu.Lock()
	session, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !ok {
		return errors.SessionNotFound(id)
	}
	session.close()
	return nil
}

// Close shuts down the session manager and all sessions
func (sm *SessionManager) Close() {
	sm.once.Do(func() { close(sm.stop) })

	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.close()
		}(session)
	}
	wg.Wait()
}
