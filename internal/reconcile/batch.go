package reconcile

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// BatchState is the position of a batch in its processing lifecycle.
type BatchState string

// Batch states. StateFailed is reachable from every non-terminal state;
// StateReported and StateFailed are terminal.
const (
	StateIdle          BatchState = "idle"
	StateParsing       BatchState = "parsing"
	StateRowProcessing BatchState = "row_processing"
	StatePersisting    BatchState = "persisting"
	StateReported      BatchState = "reported"
	StateFailed        BatchState = "failed"
)

const (
	eventParse   = "parse"
	eventProcess = "process"
	eventPersist = "persist"
	eventReport  = "report"
	eventFail    = "fail"
)

// batchMachine wraps the fsm that guards the order of batch phases.
type batchMachine struct {
	fsm *fsm.FSM
}

func newBatchMachine(batchID string, logger *zap.Logger) *batchMachine {
	active := []string{
		string(StateIdle), string(StateParsing), string(StateRowProcessing), string(StatePersisting),
	}
	m := &batchMachine{}
	m.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventParse, Src: []string{string(StateIdle)}, Dst: string(StateParsing)},
			{Name: eventProcess, Src: []string{string(StateParsing)}, Dst: string(StateRowProcessing)},
			{Name: eventPersist, Src: []string{string(StateRowProcessing)}, Dst: string(StatePersisting)},
			{Name: eventReport, Src: []string{string(StatePersisting)}, Dst: string(StateReported)},
			{Name: eventFail, Src: active, Dst: string(StateFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("batch state changed",
					zap.String("batch_id", batchID),
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)
	return m
}

// fire moves the batch along. Callers run phases in a fixed order, so an
// error here is a programming mistake and is returned as such.
func (m *batchMachine) fire(event string) error {
	// Phases are not cancellable mid-way, so transitions never see the
	// caller's context.
	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("batch %s from %s: %w", event, m.fsm.Current(), err)
	}
	return nil
}

func (m *batchMachine) state() BatchState {
	return BatchState(m.fsm.Current())
}
