package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodeStartSession unmarshals env's payload as a [StartSessionPayload].
func DecodeStartSession(env Envelope) (StartSessionPayload, error) {
	var p StartSessionPayload
	err := json.Unmarshal(env.Payload, &p)
	return p, wrapDecodeErr(env.Type, err)
}

// DecodeAudioChunk unmarshals env's payload as an [AudioChunkPayload] and
// base64-decodes its Data field.
func DecodeAudioChunk(env Envelope) (AudioChunkPayload, []byte, error) {
	var p AudioChunkPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, nil, wrapDecodeErr(env.Type, err)
	}
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return p, nil, fmt.Errorf("transport: decode audio base64: %w", err)
	}
	return p, raw, nil
}

// DecodeEndSession unmarshals env's payload as an [EndSessionPayload].
func DecodeEndSession(env Envelope) (EndSessionPayload, error) {
	var p EndSessionPayload
	err := json.Unmarshal(env.Payload, &p)
	return p, wrapDecodeErr(env.Type, err)
}

// DecodeSubmitFeedback unmarshals env's payload as a [SubmitFeedbackPayload].
func DecodeSubmitFeedback(env Envelope) (SubmitFeedbackPayload, error) {
	var p SubmitFeedbackPayload
	err := json.Unmarshal(env.Payload, &p)
	return p, wrapDecodeErr(env.Type, err)
}

// DecodeTranslateGraph unmarshals env's payload as a [TranslateGraphPayload].
func DecodeTranslateGraph(env Envelope) (TranslateGraphPayload, error) {
	var p TranslateGraphPayload
	err := json.Unmarshal(env.Payload, &p)
	return p, wrapDecodeErr(env.Type, err)
}

func wrapDecodeErr(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("transport: decode %s payload: %w", kind, err)
}
