package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

// Driver walks one scenario's conversation against the agent under test:
// scripted turns first, then simulated or webhook-delivered turns, then an
// optional post-checkup phase.
type Driver struct {
	agent     services.AgentClient
	sim       services.Simulator
	transport services.WebhookTransport
	store     store.FixtureStore
	retry     evalutil.RetryPolicy
	logger    *slog.Logger

	// ActivationHook, when set, synthesizes a plan-activation side effect
	// the moment the simulated user signals completion mid-flow. Test-only.
	ActivationHook func(ctx context.Context, userID string) error
}

func New(agent services.AgentClient, sim services.Simulator, transport services.WebhookTransport, st store.FixtureStore, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		agent:     agent,
		sim:       sim,
		transport: transport,
		store:     st,
		retry:     evalutil.DefaultRetryPolicy,
		logger:    logger,
	}
}

// RunInput is one scenario execution request.
type RunInput struct {
	UserID          string
	Scenario        *scenario.Scenario
	Limits          scenario.RunLimits
	History         []state.Turn // persisted transcript when resuming
	KickoffInjected bool         // a synthetic kickoff turn heads the history
}

// RunOutput is the driver's result: the full transcript and what this run
// spent on simulation.
type RunOutput struct {
	Transcript    []state.Turn
	TurnsExecuted int
	SimCostUSD    float64
}

// Run drives the scenario to completion or turn-budget exhaustion.
func (d *Driver) Run(ctx context.Context, in *RunInput) (*RunOutput, error) {
	if d == nil || d.store == nil {
		return nil, errors.New("driver: nil driver")
	}
	if in == nil || in.Scenario == nil {
		return nil, errors.New("driver: nil input")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, errors.New("driver: empty user id")
	}

	out := &RunOutput{Transcript: append([]state.Turn{}, in.History...)}

	// A declared kickoff opens a fresh conversation; resumed runs already
	// carry it in persisted history.
	if k := strings.TrimSpace(in.Scenario.Kickoff); k != "" && len(in.History) == 0 {
		if in.Scenario.Channel == scenario.ChannelMessaging {
			if d.transport == nil {
				return out, errors.New("driver: no webhook transport")
			}
			if err := d.deliver(ctx, in, out, k); err != nil {
				return out, err
			}
		} else if err := d.exchange(ctx, in, out, k); err != nil {
			return out, err
		}
	}

	if in.Scenario.Channel == scenario.ChannelMessaging {
		if err := d.runWebhook(ctx, in, out); err != nil {
			return out, err
		}
		return out, nil
	}

	if err := d.runScripted(ctx, in, out); err != nil {
		return out, err
	}
	if strings.TrimSpace(in.Scenario.Persona) != "" {
		if err := d.runSimulated(ctx, in, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *Driver) budgetLeft(in *RunInput, out *RunOutput) bool {
	return out.TurnsExecuted < in.Limits.MaxTurnsPerScenario
}

// runScripted replays steps verbatim. On resume it skips the steps whose
// user turns are already in persisted history, discounting a synthetic
// kickoff turn.
func (d *Driver) runScripted(ctx context.Context, in *RunInput, out *RunOutput) error {
	steps := in.Scenario.Steps
	if len(steps) == 0 {
		return nil
	}

	skip := state.CountUserTurns(in.History)
	if in.KickoffInjected && skip > 0 {
		skip--
	}

	for i := skip; i < len(steps); {
		if !d.budgetLeft(in, out) {
			return nil
		}
		if steps[i].BurstDelayMs > 0 && i+1 < len(steps) {
			if err := d.burst(ctx, in, out, steps[i], steps[i+1]); err != nil {
				return err
			}
			i += 2
			continue
		}
		if err := d.exchange(ctx, in, out, steps[i].User); err != nil {
			return err
		}
		i++
	}
	return nil
}

// exchange sends one user message, waits for the reply, and persists both.
// Aborted or empty replies are dropped from history.
func (d *Driver) exchange(ctx context.Context, in *RunInput, out *RunOutput, message string) error {
	reply, err := d.process(ctx, in.UserID, message, out.Transcript)
	if err != nil {
		return err
	}
	out.TurnsExecuted++

	turns := []state.Turn{{Role: state.RoleUser, Content: message}}
	if reply != nil && !reply.Aborted && strings.TrimSpace(reply.Content) != "" {
		turns = append(turns, state.Turn{Role: state.RoleAgent, Content: reply.Content})
	}
	out.Transcript = append(out.Transcript, turns...)
	if err := d.store.AppendTurns(ctx, in.UserID, turns); err != nil {
		return fmt.Errorf("driver: persist turns: %w", err)
	}
	return nil
}

// burst fires two user turns as concurrently in-flight calls separated by a
// short sleep, to exercise the agent's debounce handling. Replies that come
// back aborted or empty lost the coalescing race and are not appended.
func (d *Driver) burst(ctx context.Context, in *RunInput, out *RunOutput, first, second scenario.Step) error {
	replies := make([]*services.AgentReply, 2)
	errs := make([]error, 2)
	history := append([]state.Turn{}, out.Transcript...)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		replies[0], errs[0] = d.process(ctx, in.UserID, first.User, history)
	}()
	go func() {
		defer wg.Done()
		if err := evalutil.SleepWithContext(ctx, time.Duration(first.BurstDelayMs)*time.Millisecond); err != nil {
			errs[1] = err
			return
		}
		replies[1], errs[1] = d.process(ctx, in.UserID, second.User, history)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	out.TurnsExecuted += 2

	turns := []state.Turn{
		{Role: state.RoleUser, Content: first.User},
		{Role: state.RoleUser, Content: second.User},
	}
	for _, reply := range replies {
		if reply != nil && !reply.Aborted && strings.TrimSpace(reply.Content) != "" {
			turns = append(turns, state.Turn{Role: state.RoleAgent, Content: reply.Content})
		}
	}
	out.Transcript = append(out.Transcript, turns...)
	if err := d.store.AppendTurns(ctx, in.UserID, turns); err != nil {
		return fmt.Errorf("driver: persist burst turns: %w", err)
	}
	return nil
}

func (d *Driver) process(ctx context.Context, userID, message string, history []state.Turn) (*services.AgentReply, error) {
	if d.agent == nil {
		return nil, errors.New("driver: no agent client")
	}
	var reply *services.AgentReply
	err := evalutil.Retry(ctx, d.retry, services.IsRetryable, func(ctx context.Context) error {
		var callErr error
		reply, callErr = d.agent.Process(ctx, userID, message, history, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("driver: agent process: %w", err)
	}
	return reply, nil
}

func (d *Driver) snapshot(ctx context.Context, userID string) *state.Snapshot {
	snap, err := d.store.GetStateSnapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Warn("driver: snapshot read failed", "error", err)
		}
		return nil
	}
	return snap
}
