package pipeline

import (
	"testing"
	"time"
)

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"ja-JP": "ja", "ko-KR": "ko", "zh-CN": "zh", "cmn-Hans": "zh",
		"en-US": "en", "": "default", "fr": "default",
	}
	for in, want := range cases {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSentenceBuffer_EnglishSplitsOnPunctuationPlusSpace(t *testing.T) {
	b := NewSentenceBuffer()
	sentences := b.Append("Hello there. How are you doing today", "en")
	if len(sentences) != 1 {
		t.Fatalf("expected 1 sentence, got %d: %+v", len(sentences), sentences)
	}
	if sentences[0].Text != "Hello there." {
		t.Errorf("sentence = %q", sentences[0].Text)
	}
	if sentences[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", sentences[0].Confidence)
	}
}

func TestSentenceBuffer_ShortFragmentNotCut(t *testing.T) {
	b := NewSentenceBuffer()
	sentences := b.Append("Ok. ", "en")
	if len(sentences) != 0 {
		t.Fatalf("expected no sentence from a too-short fragment, got %+v", sentences)
	}
}

func TestSentenceBuffer_JapaneseSplitsOnIdeographicPeriodAndVerbEnding(t *testing.T) {
	// です/ます-family endings are valid cut points on their own, not just
	// ideographic punctuation, so "元気ですか" still splits before "か"
	// once "こんにちは。" has been carved off.
	b := NewSentenceBuffer()
	sentences := b.Append("こんにちは。元気ですか", "ja")
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %+v", len(sentences), sentences)
	}
	if sentences[0].Text != "こんにちは。" {
		t.Errorf("first sentence = %q", sentences[0].Text)
	}
	if sentences[1].Text != "元気です" {
		t.Errorf("second sentence = %q, want %q", sentences[1].Text, "元気です")
	}
}

func TestSentenceBuffer_KoreanPolicEndingPreferredOverPeriod(t *testing.T) {
	b := NewSentenceBuffer()
	sentences := b.Append("오늘 날씨가 좋습니다. 감사합니다", "ko")
	if len(sentences) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(sentences))
	}
	if sentences[0].Text != "오늘 날씨가 좋습니다." {
		t.Errorf("sentence = %q", sentences[0].Text)
	}
}

func TestSentenceBuffer_ForceFlushAfterIdlePastThreshold(t *testing.T) {
	b := NewSentenceBuffer()
	b.Append("this has no terminal punctuation but is long enough to flush", "en")
	if b.ShouldForceFlush(time.Now()) {
		t.Fatal("should not force-flush immediately")
	}
	later := time.Now().Add(3 * time.Second)
	if !b.ShouldForceFlush(later) {
		t.Fatal("expected force-flush to trigger after the idle threshold")
	}
	got := b.Flush()
	if got == nil {
		t.Fatal("expected a flushed sentence")
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85 for a force-flush", got.Confidence)
	}
}

func TestSentenceBuffer_ForceFlushRequiresMinLengthOrNonWhitespace(t *testing.T) {
	b := NewSentenceBuffer()
	b.Append("hi", "en")
	later := time.Now().Add(3 * time.Second)
	if b.ShouldForceFlush(later) {
		t.Fatal("a 2-character English fragment should not force-flush")
	}
}

func TestSentenceBuffer_FlushOnEmptyReturnsNil(t *testing.T) {
	b := NewSentenceBuffer()
	if got := b.Flush(); got != nil {
		t.Errorf("expected nil flush on empty buffer, got %+v", got)
	}
}

func TestSentenceBuffer_DominantLanguageTracksTally(t *testing.T) {
	b := NewSentenceBuffer()
	b.Append("some text", "en")
	b.Append("more text", "ko")
	b.Append("even more", "ko")
	if got := b.DominantLanguage(); got != "ko" {
		t.Errorf("dominant language = %q, want ko", got)
	}
}
