package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speechgraph/core/internal/config"
	"github.com/speechgraph/core/internal/feedback"
	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
	"github.com/speechgraph/core/pkg/provider/llm"
	"github.com/speechgraph/core/pkg/provider/stt"
)

// maxSessionAudioBytes and maxSessionAudioDuration bound a session's
// feedback-upload audio accumulation buffer; the oldest frames are evicted
// once either limit is exceeded.
const (
	maxSessionAudioBytes    = 50 * 1024 * 1024
	maxSessionAudioDuration = 30 * time.Minute

	startFrameWait = 30 * time.Second
)

// Router binds one accepted [transport.Conn] to a session, starts its
// five-worker pipeline, and dispatches every subsequent inbound frame by
// kind until the connection closes, per spec.md §4.1.
type Router struct {
	Sessions *session.Registry
	Graph    *graph.Manager
	STT      stt.Provider
	LLM      llm.Provider
	Feedback *feedback.Workflow

	Queues     config.QueuesConfig
	Heartbeat  config.HeartbeatConfig
	Extraction config.ExtractionConfig

	Metrics *observe.Metrics
}

// NewRouter assembles a [Router] from its collaborators.
func NewRouter(
	sessions *session.Registry,
	graphMgr *graph.Manager,
	sttProvider stt.Provider,
	llmProvider llm.Provider,
	feedbackWorkflow *feedback.Workflow,
	queues config.QueuesConfig,
	heartbeat config.HeartbeatConfig,
	extraction config.ExtractionConfig,
	metrics *observe.Metrics,
) *Router {
	return &Router{
		Sessions:   sessions,
		Graph:      graphMgr,
		STT:        sttProvider,
		LLM:        llmProvider,
		Feedback:   feedbackWorkflow,
		Queues:     queues,
		Heartbeat:  heartbeat,
		Extraction: extraction,
		Metrics:    metrics,
	}
}

// Handle drives conn for its whole lifetime: it blocks waiting for the
// start frame, binds or resumes a session, runs the pipeline, and
// dispatches inbound frames until the connection closes or ctx is done.
// Handle always closes conn before returning.
func (r *Router) Handle(ctx context.Context, conn *transport.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	env, ok := r.awaitStartFrame(ctx, conn)
	if !ok {
		return
	}

	st, g, err := r.bindSession(ctx, env)
	if err != nil {
		_ = conn.Send(ctx, transport.KindError, transport.ErrorPayload{
			Code:    transport.ErrInternalError,
			Message: "failed to start session",
			Details: err.Error(),
		})
		return
	}
	defer r.teardown(st)

	if err := conn.Send(ctx, transport.KindGraphFull, g); err != nil {
		return
	}

	q := NewQueues(r.Queues)
	if r.Metrics != nil {
		r.Metrics.ActiveSessions.Add(ctx, 1)
		defer r.Metrics.ActiveSessions.Add(ctx, -1)
	}

	var workers errgroup.Group
	r.startWorkers(ctx, &workers, q, conn, st)
	defer workers.Wait()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-conn.Recv():
			if !ok {
				return
			}
			r.dispatch(ctx, conn, q, st, env)
		}
	}
}

// awaitStartFrame blocks for the session's first frame. Any frame other
// than START_SESSION is refused: it is logged and the connection torn
// down, per spec.md §4.1.
func (r *Router) awaitStartFrame(ctx context.Context, conn *transport.Conn) (transport.Envelope, bool) {
	timer := time.NewTimer(startFrameWait)
	defer timer.Stop()

	select {
	case env, ok := <-conn.Recv():
		if !ok {
			return transport.Envelope{}, false
		}
		if env.Type != transport.KindStartSession {
			slog.Warn("refused frame received before start frame", "type", env.Type)
			return transport.Envelope{}, false
		}
		return env, true
	case <-timer.C:
		slog.Warn("connection closed: no start frame received")
		return transport.Envelope{}, false
	case <-ctx.Done():
		return transport.Envelope{}, false
	}
}

// bindSession decodes a START_SESSION frame, binds or resumes a
// [session.State] via the registry, and loads its [graph.SessionGraph].
func (r *Router) bindSession(ctx context.Context, env transport.Envelope) (*session.State, *graph.SessionGraph, error) {
	payload, err := transport.DecodeStartSession(env)
	if err != nil {
		return nil, nil, err
	}

	format := session.AudioFormat{Codec: "pcm16"}
	var languageCodes []string
	if payload.Config != nil {
		if payload.Config.AudioFormat != nil {
			format = session.AudioFormat{
				Codec:      payload.Config.AudioFormat.Codec,
				SampleRate: payload.Config.AudioFormat.SampleRate,
				Channels:   payload.Config.AudioFormat.Channels,
			}
		}
		languageCodes = payload.Config.LanguageCodes
	}

	st, _ := r.Sessions.Bind(payload.SessionID, format, languageCodes, maxSessionAudioBytes, maxSessionAudioDuration)
	g := r.Graph.State(ctx, st.ID())
	return st, g, nil
}

// startWorkers spawns the session's five pipeline workers under g, generalizing
// the teacher's wg.Go supervision pattern to errgroup.Group so Handle can wait
// for a clean shutdown before tearing the session down. Every worker always
// returns nil: each already catches its own panics/errors and keeps running,
// so g is used for orderly shutdown bookkeeping, not fail-fast cancellation.
func (r *Router) startWorkers(ctx context.Context, g *errgroup.Group, q *Queues, conn *transport.Conn, st *session.State) {
	g.Go(func() error { return runHeartbeat(ctx, conn, st, r.Heartbeat, r.Metrics) })
	g.Go(func() error { return runSTTWorker(ctx, q, st, r.STT, r.Metrics) })
	g.Go(func() error { return runNLPWorker(ctx, q, st, r.Metrics) })
	g.Go(func() error { return runExtractionWorker(ctx, q, st, r.Graph, r.LLM, r.Extraction, r.Metrics) })
	g.Go(func() error { return runOutboundSender(ctx, q, conn, st, r.Metrics) })
}

// dispatch routes one inbound frame by kind. Audio and ping frames are only
// meaningful while the session's pipeline is still running; feedback and
// translate frames are handled even after END_SESSION since the client may
// submit feedback right after ending the session but before disconnecting.
func (r *Router) dispatch(ctx context.Context, conn *transport.Conn, q *Queues, st *session.State, env transport.Envelope) {
	st.Touch()

	switch env.Type {
	case transport.KindAudioChunk:
		if !st.IsActive() {
			return
		}
		r.handleAudioChunk(ctx, q, st, env)
	case transport.KindEndSession:
		r.handleEndSession(ctx, q, st, env)
	case transport.KindSubmitFeedback:
		r.handleSubmitFeedback(ctx, q, st, env)
	case transport.KindTranslateGraph:
		r.handleTranslateGraph(ctx, q, st, env)
	case transport.KindPing:
		if st.IsActive() {
			_ = conn.SendDirect(ctx, transport.KindPong, struct{}{})
		}
	default:
		slog.Warn("unknown inbound frame kind", "type", env.Type)
	}
}

func (r *Router) handleAudioChunk(ctx context.Context, q *Queues, st *session.State, env transport.Envelope) {
	payload, data, err := transport.DecodeAudioChunk(env)
	if err != nil {
		slog.Warn("dropping malformed audio frame", "error", err)
		return
	}

	st.AppendAudio(data, time.Duration(payload.Duration)*time.Millisecond)

	item := AudioItem{
		Data:          data,
		Codec:         payload.Format.Codec,
		SampleRate:    payload.Format.SampleRate,
		Channels:      payload.Format.Channels,
		SegmentID:     st.ID(),
		LanguageCodes: st.LanguageHints,
		Duration:      time.Duration(payload.Duration) * time.Millisecond,
	}
	if !q.PushAudio(ctx, item) {
		if r.Metrics != nil {
			r.Metrics.RecordMessageDropped(ctx, "audio")
		}
		slog.Warn("audio queue full, dropped frame", "session", st.ID())
	}
}

// handleEndSession marks the session inactive, which stops the STT, NLP,
// extraction and heartbeat workers (the outbound sender and the connection
// stay up), records the purge-on-close flag, and requests feedback from the
// client if the workflow is enabled.
func (r *Router) handleEndSession(ctx context.Context, q *Queues, st *session.State, env transport.Envelope) {
	payload, err := transport.DecodeEndSession(env)
	if err != nil {
		slog.Warn("malformed end frame", "error", err)
	}
	st.SetPurgeOnClose(payload.ClearSession)
	st.Deactivate()

	if r.Feedback != nil {
		q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindRequestFeedback), Payload: struct{}{}})
	}
}

func (r *Router) handleSubmitFeedback(ctx context.Context, q *Queues, st *session.State, env transport.Envelope) {
	if r.Feedback == nil {
		q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindError), Payload: transport.ErrorPayload{
			Code:    transport.ErrFeedbackFailed,
			Message: "feedback is not enabled on this server",
		}})
		return
	}

	payload, err := transport.DecodeSubmitFeedback(env)
	if err != nil {
		slog.Warn("malformed feedback frame", "error", err)
		return
	}

	g := r.Graph.State(ctx, st.ID())
	result, err := r.Feedback.Submit(ctx, st.ID(), st.AudioBytes(), st.Format.Codec, g, feedback.Submission{
		Rating:  payload.Rating,
		Comment: payload.Comment,
	})
	if err != nil {
		slog.Error("feedback submission failed", "session", st.ID(), "error", err)
		q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindError), Payload: transport.ErrorPayload{
			Code:        transport.ErrFeedbackFailed,
			Message:     "failed to record feedback",
			Recoverable: true,
		}})
		return
	}

	q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindFeedbackResult), Payload: transport.FeedbackResultPayload{
		AudioURI: result.AudioURI,
		GraphURI: result.GraphURI,
	}})
}

func (r *Router) handleTranslateGraph(ctx context.Context, q *Queues, st *session.State, env transport.Envelope) {
	payload, err := transport.DecodeTranslateGraph(env)
	if err != nil {
		slog.Warn("malformed translate frame", "error", err)
		return
	}

	g := r.Graph.State(ctx, st.ID())
	req := buildTranslationPrompt(g, payload.TargetLanguage)

	resp, err := r.LLM.Complete(ctx, req)
	if r.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			r.Metrics.RecordProviderError(ctx, "llm", "translate")
		}
		r.Metrics.RecordProviderRequest(ctx, "llm", "translate", status)
	}
	if err != nil {
		q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindError), Payload: transport.ErrorPayload{
			Code:        transport.ErrExtractionFailed,
			Message:     "translation failed",
			Recoverable: true,
		}})
		return
	}

	labels, phrases := parseTranslationResponse(resp.Content)
	q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindTranslateResult), Payload: transport.TranslateResultPayload{
		TargetLanguage: payload.TargetLanguage,
		Labels:         labels,
		Phrases:        phrases,
	}})
}

// teardown removes st's registry entry and purges its persisted graph if
// the client requested it on END_SESSION. It runs after every worker has
// stopped and the outbound queue has been drained best-effort.
func (r *Router) teardown(st *session.State) {
	if st.ShouldPurge() {
		if err := r.Graph.Forget(context.Background(), st.ID()); err != nil {
			slog.Error("failed to purge session graph", "session", st.ID(), "error", err)
		}
	}
	r.Sessions.Remove(st.ID())
}
