package persona

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"friday/internal/metrics"
)

var ErrUnsupported = errors.New("persona: agent has no instruction update surface")

// InstructionUpdater is the preferred way to change a running agent.
type InstructionUpdater interface {
	UpdateInstructions(ctx context.Context, instructions string) error
}

// InstructionSetter replaces the instructions field directly.
type InstructionSetter interface {
	SetInstructions(instructions string)
}

type State int

const (
	Placeholder State = iota
	PersonaApplied
)

func (s State) String() string {
	switch s {
	case PersonaApplied:
		return "persona_applied"
	default:
		return "placeholder"
	}
}

type Outcome struct {
	State State
	Err   error
}

// Apply moves agent from the placeholder persona to the fetched one. Any
// failure leaves the agent's current instructions in place.
func Apply(ctx context.Context, agent any, res Result) Outcome {
	out := apply(ctx, agent, res)
	metrics.PersonaApply(out.State.String())
	return out
}

func apply(ctx context.Context, agent any, res Result) Outcome {
	if !res.Ok() {
		log.Warn("No persona instruction, fallback persona remains active", "err", res.Err)
		return Outcome{State: Placeholder, Err: res.Err}
	}

	var errs []error

	if u, ok := agent.(InstructionUpdater); ok {
		err := guard(func() error {
			return u.UpdateInstructions(ctx, res.Instruction)
		})
		if err == nil {
			log.Info("Applied persona instruction", "via", "update")
			return Outcome{State: PersonaApplied}
		}
		log.Warn("Instruction update failed, trying direct set", "err", err)
		errs = append(errs, err)
	}

	if s, ok := agent.(InstructionSetter); ok {
		err := guard(func() error {
			s.SetInstructions(res.Instruction)
			return nil
		})
		if err == nil {
			log.Info("Applied persona instruction", "via", "set")
			return Outcome{State: PersonaApplied}
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		errs = append(errs, ErrUnsupported)
	}
	err := errors.Join(errs...)
	log.Error("Failed to apply persona instruction, keeping placeholder", "err", err)
	return Outcome{State: Placeholder, Err: err}
}

func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
