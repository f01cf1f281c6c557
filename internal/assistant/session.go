// Package assistant drives one conversation: it starts the session, greets
// the user, swaps in the fetched persona and records every turn.
package assistant

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"friday/internal/persona"
	"friday/internal/session"
)

const DefaultFlushTimeout = 2 * time.Second

// Responder produces replies. *Agent is the production implementation; it
// also carries the instruction update surfaces used by persona.Apply.
type Responder interface {
	Reply(ctx context.Context, text, task string) (Reply, error)
}

type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Recorder is the transcript sink. *transcript.Logger implements it.
type Recorder interface {
	Enqueue(ev any)
	FlushAndStop(timeout time.Duration) error
}

type PersonaSource interface {
	FetchAsync(ctx context.Context) <-chan persona.Result
}

// Event is one transcript record.
type Event struct {
	Type   string
	At     time.Time
	Fields map[string]any
}

func (e Event) ToMap() (map[string]any, error) {
	m := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["type"] = e.Type
	m["timestamp"] = e.At
	return m, nil
}

type Options struct {
	DialedNumber string
	FlushTimeout time.Duration
}

type Session struct {
	reg      *session.Registry
	agent    Responder
	persona  PersonaSource
	recorder Recorder
	speaker  Speaker
	opts     Options

	outcome chan persona.Outcome
}

func NewSession(agent Responder, src PersonaSource, rec Recorder, sp Speaker, opts Options) *Session {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	return &Session{
		reg:      session.NewRegistry(),
		agent:    agent,
		persona:  src,
		recorder: rec,
		speaker:  sp,
		opts:     opts,
		outcome:  make(chan persona.Outcome, 1),
	}
}

func (s *Session) Registry() *session.Registry {
	return s.reg
}

// Context returns ctx carrying this session's registry.
func (s *Session) Context(ctx context.Context) context.Context {
	return session.NewContext(ctx, s.reg)
}

// Start opens the session, sends the greeting and then fetches the persona
// in the background. A failed greeting is logged, not returned: the session
// stays usable.
func (s *Session) Start(ctx context.Context) (session.ID, error) {
	id, err := s.reg.Start(time.Now())
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if err := s.reg.SetCoordinator(s); err != nil {
		log.Debug("Coordinator already registered", "session", id, "err", err)
	}
	if s.opts.DialedNumber != "" {
		if err := s.reg.SetDialedNumber(s.opts.DialedNumber); err != nil {
			log.Debug("Dialed number already registered", "session", id, "err", err)
		}
	}
	ctx = s.Context(ctx)

	s.record("session_start", nil)

	if err := s.respond(ctx, "", persona.Greeting); err != nil {
		log.Error("Failed to greet", "session", id, "err", err)
	}

	go s.bootstrapPersona(ctx)
	return id, nil
}

// Persona yields the outcome of the persona bootstrap once it finishes.
func (s *Session) Persona() <-chan persona.Outcome {
	return s.outcome
}

func (s *Session) bootstrapPersona(ctx context.Context) {
	res := <-s.persona.FetchAsync(ctx)
	out := persona.Apply(ctx, s.agent, res)

	fields := map[string]any{"state": out.State.String()}
	if out.Err != nil {
		fields["error"] = out.Err
	}
	s.record("persona", fields)

	s.outcome <- out
}

// Handle answers one user utterance.
func (s *Session) Handle(ctx context.Context, text string) error {
	ctx = s.Context(ctx)
	s.record("user_msg", map[string]any{"text": text})
	return s.respond(ctx, text, "")
}

func (s *Session) respond(ctx context.Context, text, task string) error {
	reply, err := s.agent.Reply(ctx, text, task)
	for _, tc := range reply.ToolCalls {
		s.record("tool_call", map[string]any{"call": tc})
	}
	if err != nil {
		s.record("error", map[string]any{"stage": "reply", "error": err})
		return err
	}

	s.record("assistant_msg", map[string]any{"text": reply.Text})

	if s.speaker != nil && reply.Text != "" {
		if err := s.speaker.Say(ctx, reply.Text); err != nil {
			log.Warn("Failed to speak reply", "err", err)
		}
	}
	return nil
}

// Run handles utterances until the channel closes or ctx ends.
func (s *Session) Run(ctx context.Context, utterances <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-utterances:
			if !ok {
				return
			}
			if text == "" {
				continue
			}
			if err := s.Handle(ctx, text); err != nil {
				log.Error("Failed to handle utterance", "session", s.reg.ID(), "err", err)
			}
		}
	}
}

// Close records the end of the session and flushes the transcript.
func (s *Session) Close() error {
	s.record("session_end", nil)
	return s.recorder.FlushAndStop(s.opts.FlushTimeout)
}

func (s *Session) record(kind string, fields map[string]any) {
	s.recorder.Enqueue(Event{
		Type:   kind,
		At:     time.Now().UTC(),
		Fields: s.reg.Tag(fields),
	})
}
