package main

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// RunState enumerates the orchestrator states for one council run.
type RunState int

const (
	RunPending RunState = iota
	Stage1Running
	Stage1Done
	Stage2Running
	Stage2Done
	Stage3Running
	Stage3Done
	RunPersisted
	RunFailed
)

// Stage names used in events and errors.
const (
	StageResponses = "stage1"
	StageRankings  = "stage2"
	StageSynthesis = "stage3"
	StagePersist   = "persist"
)

// StageError reports a whole-stage failure: a stage ended with zero usable
// outputs. Anything below stage level is absorbed as content or omission.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s failed: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// PersistenceError reports that the run completed but the conversation
// write failed. The computed result is still returned to the caller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("failed to persist message: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrClientGone means the client disconnected between stages. The run stops
// before the next stage and nothing is persisted.
var ErrClientGone = errors.New("client disconnected")

// EventSink receives one event per state transition.
type EventSink func(Event)

// RunResult is the full output of one council run.
type RunResult struct {
	Stage1   []Stage1Response
	Stage2   []Stage2Ranking
	Stage3   Stage3Response
	Metadata Metadata
}

// stage2Payload is the stage_result payload for stage 2.
type stage2Payload struct {
	Rankings         []Stage2Ranking    `json:"rankings"`
	LabelToMember    map[string]string  `json:"label_to_member"`
	AggregateRanking []AggregateRanking `json:"aggregate_ranking"`
}

// errorPayload is the payload of error events.
type errorPayload struct {
	Message string `json:"message"`
}

// CouncilRun sequences the three deliberation stages for a single exchange
// as an explicit state machine: each transition emits exactly one event,
// and no stage starts before the previous stage's fan-in completed.
type CouncilRun struct {
	Client  ModelClient
	Members []CouncilMember
	Query   string
	Subject string

	// Persist writes the finished result; the done event fires only after
	// it succeeds. Nil skips persistence (and the done event still fires).
	Persist func(*RunResult) error

	// ClientGone is polled between stages. When it reports true, in-flight
	// work of the finished stage is kept but no further stage starts and
	// nothing is persisted.
	ClientGone func() bool

	state RunState
	sink  EventSink
}

// transition advances the state machine and emits the event for the new
// state. Transitions are total: every state maps to exactly one event.
func (r *CouncilRun) transition(next RunState, stage string, payload interface{}) {
	r.state = next
	if r.sink == nil {
		return
	}
	switch next {
	case Stage1Running, Stage2Running, Stage3Running:
		r.sink(Event{Type: EventStageStart, Stage: stage})
	case Stage1Done, Stage2Done, Stage3Done:
		r.sink(Event{Type: EventStageResult, Stage: stage, Payload: payload})
	case RunFailed:
		r.sink(Event{Type: EventError, Stage: stage, Payload: payload})
	case RunPersisted:
		r.sink(Event{Type: EventDone})
	}
}

// fail marks the run as failed at the given stage and returns the
// StageError the caller propagates.
func (r *CouncilRun) fail(stage string, err error) error {
	log.Printf("Council run failed at %s: %v", stage, err)
	r.transition(RunFailed, stage, errorPayload{Message: err.Error()})
	return &StageError{Stage: stage, Err: err}
}

// gone reports whether the client has disconnected.
func (r *CouncilRun) gone() bool {
	return r.ClientGone != nil && r.ClientGone()
}

// State returns the current run state.
func (r *CouncilRun) State() RunState {
	return r.state
}

// Run executes the three stages in order, emitting one event per
// transition to sink (which may be nil). Per-member failures surface as
// placeholder content or omitted rankers; only a stage with zero usable
// outputs terminates the run.
func (r *CouncilRun) Run(ctx context.Context, sink EventSink) (*RunResult, error) {
	r.sink = sink
	r.state = RunPending

	if len(r.Members) == 0 {
		return nil, r.fail(StageResponses, errors.New("no council members selected"))
	}

	// Stage 1: independent answers
	r.transition(Stage1Running, StageResponses, nil)
	stage1 := Stage1CollectResponses(ctx, r.Client, r.Members, r.Query, r.Subject)
	if usableResponses(stage1) == 0 {
		return nil, r.fail(StageResponses, errors.New("all council members failed to respond"))
	}
	r.transition(Stage1Done, StageResponses, stage1)

	if r.gone() {
		return nil, ErrClientGone
	}

	// Stage 2: blind peer ranking. Zero valid rankings is not fatal - the
	// chairman still synthesizes from the raw responses.
	r.transition(Stage2Running, StageRankings, nil)
	labeled := AssignLabels(stage1)
	stage2 := Stage2CollectRankings(ctx, r.Client, r.Members, r.Query, r.Subject, labeled)
	labelToMember := LabelToMemberMap(labeled)
	aggregate := CalculateAggregateRankings(stage2, labeled)
	r.transition(Stage2Done, StageRankings, stage2Payload{
		Rankings:         stage2,
		LabelToMember:    labelToMember,
		AggregateRanking: aggregate,
	})

	if r.gone() {
		return nil, ErrClientGone
	}

	// Stage 3: chairman synthesis
	r.transition(Stage3Running, StageSynthesis, nil)
	stage3, err := Stage3SynthesizeFinal(ctx, r.Client, r.Query, r.Subject, r.Members, labeled, stage2, aggregate)
	if err != nil {
		return nil, r.fail(StageSynthesis, err)
	}
	r.transition(Stage3Done, StageSynthesis, stage3)

	result := &RunResult{
		Stage1: stage1,
		Stage2: stage2,
		Stage3: *stage3,
		Metadata: Metadata{
			LabelToMember:     labelToMember,
			AggregateRankings: aggregate,
		},
	}

	if r.gone() {
		return result, ErrClientGone
	}

	if r.Persist != nil {
		if err := r.Persist(result); err != nil {
			log.Printf("Failed to persist council result: %v", err)
			if r.sink != nil {
				r.sink(Event{Type: EventError, Stage: StagePersist, Payload: errorPayload{Message: err.Error()}})
			}
			return result, &PersistenceError{Err: err}
		}
	}

	r.transition(RunPersisted, "", nil)
	return result, nil
}
