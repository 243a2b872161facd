package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks live [State] values by session id, guarded by a single
// mutex in the same lock-per-map shape the graph manager uses for session
// graphs. The session router is the exclusive owner of the entries it
// creates; the registry itself only arbitrates lookup, creation, and
// removal.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*State
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*State)}
}

// Bind resolves the session a connection should use. The router always
// removes a session's entry on teardown, so in the normal lifecycle a
// reconnect never finds a still-live entry here — the graph itself is what
// actually resumes across a reconnect, loaded separately from the durable
// store by id. The resumed=true branch below only fires in the narrow race
// where a second connection presents the same requestedID before the first
// connection's teardown has removed it (e.g. a client reconnecting
// immediately after a transport blip, before the server noticed the old
// socket was gone); it deliberately returns the same live State, audio
// buffer and all, rather than discarding in-flight accumulation over that
// race window. If requestedID is non-empty and not currently live, a new
// State is created under that id (the common resume path: the client
// remembers a session id whose in-memory state is gone, and only its graph
// persists). If requestedID is empty, a new State is created under a
// freshly minted id.
func (r *Registry) Bind(requestedID string, format AudioFormat, languageHints []string, maxAudioBytes int, maxAudioDuration time.Duration) (st *State, resumed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestedID != "" {
		if existing, ok := r.sessions[requestedID]; ok {
			return existing, true
		}
		st = New(requestedID, format, languageHints, maxAudioBytes, maxAudioDuration)
		r.sessions[requestedID] = st
		return st, false
	}

	id := uuid.NewString()
	st = New(id, format, languageHints, maxAudioBytes, maxAudioDuration)
	r.sessions[id] = st
	return st, false
}

// Get looks up a session by id without creating one.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[id]
	return st, ok
}

// Remove deletes a session entry, called by the router on connection close.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of currently tracked sessions, used to feed the
// active-sessions gauge.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
