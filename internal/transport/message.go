// Package transport implements the client-facing full-duplex channel:
// message framing, the websocket connection lifecycle, and the paired
// read/write loops a session router drives, per spec.md §6.1.
package transport

import (
	"encoding/json"
	"time"
)

// Kind enumerates the inbound and outbound message kinds from spec.md §6.1.
type Kind string

const (
	KindStartSession   Kind = "START_SESSION"
	KindAudioChunk     Kind = "AUDIO_CHUNK"
	KindEndSession     Kind = "END_SESSION"
	KindSubmitFeedback Kind = "SUBMIT_FEEDBACK"
	KindTranslateGraph Kind = "TRANSLATE_GRAPH"
	KindPing           Kind = "PING"

	KindSTTPartial       Kind = "STT_PARTIAL"
	KindSTTFinal         Kind = "STT_FINAL"
	KindGraphFull        Kind = "GRAPH_FULL"
	KindGraphDelta       Kind = "GRAPH_DELTA"
	KindProcessingStatus Kind = "PROCESSING_STATUS"
	KindError            Kind = "ERROR"
	KindPong              Kind = "PONG"
	KindRequestFeedback   Kind = "REQUEST_FEEDBACK"
	KindFeedbackResult    Kind = "FEEDBACK_RESULT"
	KindTranslateResult   Kind = "TRANSLATE_RESULT"
)

// Urgent reports whether messages of this kind bypass the outbound queue
// and are written directly from the heartbeat worker, per spec.md §4.2.
func (k Kind) Urgent() bool {
	return k == KindPing || k == KindPong
}

// Error codes from spec.md §6.1.
const (
	ErrAudioFormatUnsupported = "AUDIO_FORMAT_UNSUPPORTED"
	ErrSTTFailed              = "STT_FAILED"
	ErrExtractionFailed       = "EXTRACTION_FAILED"
	ErrGraphUpdateFailed      = "GRAPH_UPDATE_FAILED"
	ErrRateLimited            = "RATE_LIMITED"
	ErrSessionExpired         = "SESSION_EXPIRED"
	ErrFeedbackFailed         = "FEEDBACK_FAILED"
	ErrStorageError           = "STORAGE_ERROR"
	ErrInternalError          = "INTERNAL_ERROR"
)

// Envelope is the wire shape of every message in both directions:
// { "type": <KIND>, "payload": <object>, "timestamp": <ms>, "messageId": <uuid> }
type Envelope struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId"`
}

// nowMillis returns t as Unix milliseconds.
func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Inbound payload shapes.

type StartSessionPayload struct {
	SessionID string            `json:"sessionId,omitempty"`
	Config    *StartSessionConfig `json:"config,omitempty"`
}

type StartSessionConfig struct {
	AudioFormat    *AudioFormatPayload `json:"audioFormat,omitempty"`
	LanguageCodes  []string            `json:"languageCodes,omitempty"`
	ExtractionMode string              `json:"extractionMode,omitempty"`
}

type AudioFormatPayload struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bitDepth,omitempty"`
}

type AudioChunkPayload struct {
	Data           string              `json:"data"`
	Format         AudioFormatPayload  `json:"format"`
	SequenceNumber uint64              `json:"sequenceNumber"`
	StartTime      int64               `json:"startTime"`
	Duration       int64               `json:"duration"` // milliseconds
}

type EndSessionPayload struct {
	ClearSession bool `json:"clearSession,omitempty"`
}

type SubmitFeedbackPayload struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type TranslateGraphPayload struct {
	TargetLanguage string `json:"targetLanguage"`
}

// Outbound payload shapes.

type STTPartialPayload struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	SegmentID    string  `json:"segmentId"`
	LanguageCode string  `json:"languageCode,omitempty"`
}

type STTFinalPayload struct {
	Text         string   `json:"text"`
	Confidence   float64  `json:"confidence"`
	SegmentID    string   `json:"segmentId"`
	Morphemes    []string `json:"morphemes,omitempty"`
	IsComplete   bool     `json:"isComplete"`
}

type ProcessingStatusPayload struct {
	Stage   string `json:"stage"`
	ChunkID string `json:"chunkId,omitempty"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Details     string `json:"details,omitempty"`
}

type FeedbackResultPayload struct {
	AudioURI string `json:"audioUri,omitempty"`
	GraphURI string `json:"graphUri,omitempty"`
}

type TranslateResultPayload struct {
	TargetLanguage string            `json:"targetLanguage"`
	Labels         map[string]string `json:"labels"`
	Phrases        map[string]string `json:"phrases"`
}

// encode marshals kind and payload into a stamped [Envelope] ready to send.
func encode(kind Kind, payload any, messageID string, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Type:      kind,
		Payload:   raw,
		Timestamp: nowMillis(now),
		MessageID: messageID,
	}
	return json.Marshal(env)
}
