package transport

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestDecodeAudioChunk_DecodesBase64Payload(t *testing.T) {
	raw := []byte("pcm-bytes")
	payload := AudioChunkPayload{
		Data:           base64.StdEncoding.EncodeToString(raw),
		Format:         AudioFormatPayload{Codec: "opus", SampleRate: 16000, Channels: 1},
		SequenceNumber: 7,
	}
	body, _ := json.Marshal(payload)
	env := Envelope{Type: KindAudioChunk, Payload: body}

	p, data, err := DecodeAudioChunk(env)
	if err != nil {
		t.Fatalf("DecodeAudioChunk: %v", err)
	}
	if string(data) != "pcm-bytes" {
		t.Errorf("data = %q, want pcm-bytes", data)
	}
	if p.SequenceNumber != 7 {
		t.Errorf("sequenceNumber = %d, want 7", p.SequenceNumber)
	}
}

func TestDecodeAudioChunk_InvalidBase64Errors(t *testing.T) {
	body, _ := json.Marshal(AudioChunkPayload{Data: "not-valid-base64!!"})
	env := Envelope{Type: KindAudioChunk, Payload: body}

	if _, _, err := DecodeAudioChunk(env); err == nil {
		t.Fatal("expected an error for invalid base64")
	}
}

func TestDecodeStartSession_RoundTrips(t *testing.T) {
	body, _ := json.Marshal(StartSessionPayload{
		SessionID: "s1",
		Config: &StartSessionConfig{
			LanguageCodes:  []string{"en", "ko"},
			ExtractionMode: "realtime",
		},
	})
	env := Envelope{Type: KindStartSession, Payload: body}

	p, err := DecodeStartSession(env)
	if err != nil {
		t.Fatalf("DecodeStartSession: %v", err)
	}
	if p.SessionID != "s1" {
		t.Errorf("sessionId = %q, want s1", p.SessionID)
	}
	if p.Config == nil || len(p.Config.LanguageCodes) != 2 {
		t.Errorf("config = %+v", p.Config)
	}
}

func TestDecodeSubmitFeedback(t *testing.T) {
	body, _ := json.Marshal(SubmitFeedbackPayload{Rating: 4, Comment: "good"})
	env := Envelope{Type: KindSubmitFeedback, Payload: body}

	p, err := DecodeSubmitFeedback(env)
	if err != nil {
		t.Fatalf("DecodeSubmitFeedback: %v", err)
	}
	if p.Rating != 4 || p.Comment != "good" {
		t.Errorf("payload = %+v", p)
	}
}
