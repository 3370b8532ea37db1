package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/services"
)

// runSimulated asks the user simulator for each next message. It stops when
// the simulator says done, except during a checkup: the simulator cannot see
// server-side completion state, so checkup progress overrides its done
// signal and checkup completion ends the phase regardless of it.
func (d *Driver) runSimulated(ctx context.Context, in *RunInput, out *RunOutput) error {
	if d.sim == nil {
		return errors.New("driver: no simulator")
	}

	checkupSeen := false
	for d.budgetLeft(in, out) {
		snap := d.snapshot(ctx, in.UserID)
		if evalutil.CheckupInProgress(snap) {
			checkupSeen = true
		}
		if checkupSeen && evalutil.CheckupComplete(snap) {
			break
		}

		turn, err := d.simulate(ctx, in, out)
		if err != nil {
			return err
		}
		out.SimCostUSD += turn.CostUSD

		if err := d.exchange(ctx, in, out, turn.NextMessage); err != nil {
			return err
		}

		if turn.Done {
			snap = d.snapshot(ctx, in.UserID)
			if !evalutil.CheckupInProgress(snap) {
				break
			}
		}
	}

	if in.Limits.TestPostCheckupDeferral && checkupSeen {
		return d.runParkingLot(ctx, in, out)
	}
	return nil
}

// runParkingLot keeps the conversation going past checkup completion until
// the snapshot confirms every deferred topic was revisited, bounded by the
// remaining turn budget.
func (d *Driver) runParkingLot(ctx context.Context, in *RunInput, out *RunOutput) error {
	for d.budgetLeft(in, out) {
		snap := d.snapshot(ctx, in.UserID)
		if evalutil.CheckupFullyDone(snap) {
			return nil
		}

		turn, err := d.simulate(ctx, in, out)
		if err != nil {
			return err
		}
		out.SimCostUSD += turn.CostUSD

		if err := d.exchange(ctx, in, out, turn.NextMessage); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) simulate(ctx context.Context, in *RunInput, out *RunOutput) (*services.SimTurn, error) {
	turn, err := d.sim.Simulate(ctx, &services.SimRequest{
		Persona:    in.Scenario.Persona,
		Objectives: in.Scenario.Objectives,
		Transcript: out.Transcript,
		TurnIndex:  out.TurnsExecuted,
		MaxTurns:   in.Limits.MaxTurnsPerScenario,
		Difficulty: in.Limits.UserDifficulty,
		Context:    in.Scenario.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("driver: simulate: %w", err)
	}
	return turn, nil
}
