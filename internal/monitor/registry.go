package monitor

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one attached player.
type Session struct {
	ID        string
	RunID     string
	Source    string
	Remote    string
	StartedAt time.Time

	pictures atomic.Int64
	audio    atomic.Int64
	bytes    atomic.Int64
	captions atomic.Int64
	lastPTS  atomic.Int64
	done     chan struct{}
}

// SessionStats is a snapshot of a session's counters.
type SessionStats struct {
	ID       string `json:"id"`
	RunID    string `json:"runId"`
	Source   string `json:"source"`
	Remote   string `json:"remote"`
	Pictures int64  `json:"pictures"`
	Audio    int64  `json:"audio"`
	Bytes    int64  `json:"bytes"`
	Captions int64  `json:"captions"`
	LastPTS  int64  `json:"lastPts"`
	UptimeMs int64  `json:"uptimeMs"`
}

// Done is closed when the session is removed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of the counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:       s.ID,
		RunID:    s.RunID,
		Source:   s.Source,
		Remote:   s.Remote,
		Pictures: s.pictures.Load(),
		Audio:    s.audio.Load(),
		Bytes:    s.bytes.Load(),
		Captions: s.captions.Load(),
		LastPTS:  s.lastPTS.Load(),
		UptimeMs: time.Since(s.StartedAt).Milliseconds(),
	}
}

func (s *Session) recordPicture(p Picture, size int) {
	s.pictures.Add(1)
	s.bytes.Add(int64(size))
	s.captions.Add(int64(len(p.Captions)))
	s.lastPTS.Store(p.PTS)
}

func (s *Session) recordAudio(size int) {
	s.audio.Add(1)
	s.bytes.Add(int64(size))
}

// Registry tracks attached sessions keyed by run id. A run may be attached
// at most once.
type Registry struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. If log is nil, slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "monitor-registry"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a session for hello. It returns nil and false when the
// run is already attached.
func (r *Registry) Create(id string, hello Hello, remote string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[hello.RunID]; ok {
		r.log.Warn("run already attached, rejecting duplicate", "run_id", hello.RunID, "remote", remote)
		return nil, false
	}
	s := &Session{
		ID:        id,
		RunID:     hello.RunID,
		Source:    hello.Source,
		Remote:    remote,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.lastPTS.Store(-1)
	r.sessions[hello.RunID] = s
	r.log.Info("session attached", "run_id", hello.RunID, "session", id, "source", hello.Source)
	return s, true
}

// Get returns the session of runID.
func (r *Registry) Get(runID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[runID]
	return s, ok
}

// Remove detaches the session of runID and closes its Done channel.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	s, ok := r.sessions[runID]
	if ok {
		delete(r.sessions, runID)
	}
	r.mu.Unlock()

	if ok {
		close(s.done)
		st := s.Stats()
		r.log.Info("session detached", "run_id", runID, "pictures", st.Pictures, "audio", st.Audio, "bytes", st.Bytes)
	}
}

// List returns the attached sessions ordered by start time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
