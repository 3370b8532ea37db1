package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/state"
)

// runWebhook drives the messaging channel: turns arrive as synthetic inbound
// webhook payloads instead of direct calls, and the agent's replies show up
// asynchronously in the persisted transcript.
func (d *Driver) runWebhook(ctx context.Context, in *RunInput, out *RunOutput) error {
	if d.transport == nil {
		return errors.New("driver: no webhook transport")
	}

	skip := state.CountUserTurns(in.History)
	if in.KickoffInjected && skip > 0 {
		skip--
	}
	for i, step := range in.Scenario.Steps {
		if i < skip {
			continue
		}
		if !d.budgetLeft(in, out) {
			break
		}
		if err := d.deliver(ctx, in, out, step.User); err != nil {
			return err
		}
	}

	if strings.TrimSpace(in.Scenario.Persona) != "" {
		if err := d.runWebhookSim(ctx, in, out); err != nil {
			return err
		}
	}

	return d.reloadTranscript(ctx, in, out)
}

// runWebhookSim alternates fetching the current transcript with asking the
// simulator for the next line and delivering it as another webhook payload.
func (d *Driver) runWebhookSim(ctx context.Context, in *RunInput, out *RunOutput) error {
	if d.sim == nil {
		return errors.New("driver: no simulator")
	}
	forceTurns := in.Scenario.Setup != nil && in.Scenario.Setup.ForceWebhookTurns

	for d.budgetLeft(in, out) {
		if err := d.reloadTranscript(ctx, in, out); err != nil {
			return err
		}

		turn, err := d.simulate(ctx, in, out)
		if err != nil {
			return err
		}
		out.SimCostUSD += turn.CostUSD

		if err := d.deliver(ctx, in, out, turn.NextMessage); err != nil {
			return err
		}

		if turn.Done {
			if d.ActivationHook != nil {
				if err := d.ActivationHook(ctx, in.UserID); err != nil {
					return fmt.Errorf("driver: activation hook: %w", err)
				}
			}
			if !forceTurns {
				break
			}
		}
	}
	return nil
}

// deliver posts one inbound payload. A message matching a suggested reply is
// sent in interactive-reply shape. Non-success is fatal for the scenario.
func (d *Driver) deliver(ctx context.Context, in *RunInput, out *RunOutput, message string) error {
	msg := &services.InboundMessage{UserID: in.UserID, Text: message}
	for i, suggested := range in.Scenario.SuggestedReplies {
		if strings.EqualFold(strings.TrimSpace(suggested), strings.TrimSpace(message)) {
			msg.Text = ""
			msg.InteractiveReplyID = fmt.Sprintf("reply_%d", i)
			break
		}
	}

	if err := d.transport.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("driver: deliver webhook: %w", err)
	}
	out.TurnsExecuted++
	return nil
}

// reloadTranscript replaces the in-memory view with the persisted one, which
// the agent under test appends to on its side of the webhook.
func (d *Driver) reloadTranscript(ctx context.Context, in *RunInput, out *RunOutput) error {
	turns, err := d.store.GetTranscript(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("driver: reload transcript: %w", err)
	}
	out.Transcript = turns
	return nil
}
