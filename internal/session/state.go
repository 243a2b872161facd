// Package session owns per-connection session state: the identity of a
// client connection, its negotiated audio format, its
// capped audio accumulation buffer, and its activity clocks. The session
// router is the exclusive owner of a [State] value; workers only read it.
package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// AudioFormat describes the codec/sample-rate/channel negotiation for a
// session's inbound audio frames.
type AudioFormat struct {
	Codec      string
	SampleRate int
	Channels   int
}

// State holds per-connection identity, audio accumulation, and activity
// clocks. The router obtains a State from [Registry.Bind] when the start
// frame arrives, under the client-supplied id or a freshly minted one. All
// methods are safe for concurrent use.
type State struct {
	// id is the session's current identity, replaced only by Rebind.
	id atomic.Value // string

	Format        AudioFormat
	LanguageHints []string

	CreatedAt time.Time

	active       atomic.Bool
	seq          atomic.Uint64
	lastActivity atomic.Int64 // UnixNano
	purgeOnClose atomic.Bool
	outboundSeq  atomic.Uint64

	audio *AudioBuffer

	mu               sync.Mutex
	detectedLanguage map[string]int
}

// New creates a provisional [State] with the given id, audio buffer caps,
// and negotiated language hints. The session starts active.
func New(id string, format AudioFormat, languageHints []string, maxAudioBytes int, maxAudioDuration time.Duration) *State {
	s := &State{
		Format:           format,
		LanguageHints:    languageHints,
		CreatedAt:        time.Now(),
		audio:            newAudioBuffer(maxAudioBytes, maxAudioDuration),
		detectedLanguage: make(map[string]int),
	}
	s.id.Store(id)
	s.active.Store(true)
	s.lastActivity.Store(time.Now().UnixNano())
	return s
}

// ID returns the session's current identity.
func (s *State) ID() string {
	return s.id.Load().(string)
}

// Rebind replaces the session id. The router does not call it: a resumed
// session gets its id from [Registry.Bind] instead.
func (s *State) Rebind(id string) {
	s.id.Store(id)
}

// Touch records inbound client activity, resetting the heartbeat's
// inactivity clock. Any inbound frame — not only pongs — counts as activity.
func (s *State) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent recorded client activity.
func (s *State) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IsActive reports whether the session is still active. Workers check this
// on each loop iteration as the single cooperative cancellation signal.
func (s *State) IsActive() bool {
	return s.active.Load()
}

// Deactivate marks the session inactive. The STT, NLP, extraction and
// heartbeat workers exit at their next check. Deactivate does not close the
// connection or stop the outbound sender; both last until the router's
// context is cancelled or the client disconnects.
func (s *State) Deactivate() {
	s.active.Store(false)
}

// NextInboundSeq returns the next inbound frame sequence number, starting
// at 1.
func (s *State) NextInboundSeq() uint64 {
	return s.seq.Add(1)
}

// NextOutboundSeq returns the next outbound message counter value, starting
// at 1.
func (s *State) NextOutboundSeq() uint64 {
	return s.outboundSeq.Add(1)
}

// SetPurgeOnClose records whether persisted state should be purged when the
// session closes (set by an END_SESSION frame's clearSession flag).
func (s *State) SetPurgeOnClose(purge bool) {
	s.purgeOnClose.Store(purge)
}

// ShouldPurge reports whether persisted state should be purged on close.
func (s *State) ShouldPurge() bool {
	return s.purgeOnClose.Load()
}

// AppendAudio appends a decoded audio frame to the session's bounded
// accumulation buffer, used for optional feedback upload.
func (s *State) AppendAudio(data []byte, duration time.Duration) {
	s.audio.Append(data, duration)
}

// AudioBytes returns the concatenated contents of the accumulation buffer.
func (s *State) AudioBytes() []byte {
	return s.audio.Bytes()
}

// NoteLanguage records a detected language code for this session's running
// tally, used to pick the dominant negotiated language across the session.
func (s *State) NoteLanguage(code string) {
	if code == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectedLanguage[code]++
}

// DominantLanguage returns the most frequently detected language code so
// far, or the empty string if none has been observed.
func (s *State) DominantLanguage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	best, bestCount := "", 0
	for code, count := range s.detectedLanguage {
		if count > bestCount {
			best, bestCount = code, count
		}
	}
	return best
}

// audioChunk is one appended frame retained in the FIFO accumulation buffer.
type audioChunk struct {
	data     []byte
	duration time.Duration
}

// AudioBuffer is a FIFO-eviction buffer bounded by both total byte count and
// total duration, used to retain recent audio for optional feedback upload
// without unbounded memory growth.
type AudioBuffer struct {
	mu            sync.Mutex
	chunks        []audioChunk
	totalBytes    int
	totalDuration time.Duration
	maxBytes      int
	maxDuration   time.Duration
}

func newAudioBuffer(maxBytes int, maxDuration time.Duration) *AudioBuffer {
	return &AudioBuffer{maxBytes: maxBytes, maxDuration: maxDuration}
}

// Append adds a chunk and evicts from the front until both bounds are
// satisfied.
func (b *AudioBuffer) Append(data []byte, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	b.chunks = append(b.chunks, audioChunk{data: cp, duration: duration})
	b.totalBytes += len(cp)
	b.totalDuration += duration

	for len(b.chunks) > 0 && (b.overBytes() || b.overDuration()) {
		evicted := b.chunks[0]
		b.chunks = b.chunks[1:]
		b.totalBytes -= len(evicted.data)
		b.totalDuration -= evicted.duration
	}
}

func (b *AudioBuffer) overBytes() bool {
	return b.maxBytes > 0 && b.totalBytes > b.maxBytes
}

func (b *AudioBuffer) overDuration() bool {
	return b.maxDuration > 0 && b.totalDuration > b.maxDuration
}

// Bytes returns the concatenation of all retained chunks in FIFO order.
func (b *AudioBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.totalBytes)
	for _, c := range b.chunks {
		out = append(out, c.data...)
	}
	return out
}
