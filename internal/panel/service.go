package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Dispatcher sends one request body to a backend endpoint. A nil body means
// the endpoint takes none.
type Dispatcher interface {
	Post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error)
}

// Enqueuer hands fire-and-forget triggers to the job queue.
type Enqueuer interface {
	EnqueueTrigger(ctx context.Context, endpoint string, body []byte) (string, error)
}

// Recorder observes submission outcomes.
type Recorder interface {
	ObserveSubmission(panelID, outcome string, elapsed time.Duration)
}

// Submission outcomes reported to the Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeQueued     = "queued"
	OutcomeValidation = "validation_error"
	OutcomeBusy       = "busy"
	OutcomeFailure    = "request_error"
)

// ServiceConfig collects the collaborators of a Service.
type ServiceConfig struct {
	Catalog    *Catalog
	Dispatcher Dispatcher
	Store      StateStore
	Locker     Locker
	Queue      Enqueuer
	Recorder   Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service runs the validate, lock, dispatch and remember cycle for every panel.
type Service struct {
	catalog    *Catalog
	dispatcher Dispatcher
	store      StateStore
	locker     Locker
	queue      Enqueuer
	recorder   Recorder
	validator  *Validator
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:    cfg.Catalog,
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		locker:     cfg.Locker,
		queue:      cfg.Queue,
		recorder:   cfg.Recorder,
		validator:  NewValidator(),
		logger:     logger,
		now:        now,
	}
}

// View is everything needed to render a panel for one session.
type View struct {
	Definition Definition
	State      State
	Values     Values
	Busy       bool
}

// Catalog exposes the panel definitions.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// View loads the panel state for scope. Values fall back to the defaults
// when nothing was submitted yet.
func (s *Service) View(ctx context.Context, scope, panelID string) (View, error) {
	def, ok := s.catalog.Lookup(panelID)
	if !ok {
		return View{}, ErrUnknownPanel
	}
	state, err := s.store.Load(ctx, scope, panelID)
	if err != nil {
		return View{}, err
	}
	busy, err := s.locker.Busy(ctx, scope, panelID)
	if err != nil {
		return View{}, err
	}
	values := state.Values
	if len(values) == 0 {
		values = def.Defaults(s.now())
	}
	return View{Definition: def, State: state, Values: values, Busy: busy}, nil
}

// Encode normalises, validates and encodes raw values into the wire body.
// No state is touched, so it is safe to call for previews and tests.
func (s *Service) Encode(def Definition, raw Values) (Values, []byte, error) {
	values := def.Normalize(raw)
	if err := s.validator.Check(def, values); err != nil {
		return values, nil, err
	}
	payload, err := def.Payload(values)
	if err != nil {
		return values, nil, err
	}
	if payload == nil {
		return values, nil, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return values, nil, fmt.Errorf("panel %s: marshal payload: %w", def.ID, err)
	}
	return values, body, nil
}

// Submit validates raw values and, when they pass, issues exactly one
// dispatch while holding the panel lock. The returned state is the one
// stored for the session; on failure it still carries the previous result.
func (s *Service) Submit(ctx context.Context, scope, panelID string, raw Values) (State, error) {
	started := s.now()
	def, ok := s.catalog.Lookup(panelID)
	if !ok {
		return State{}, ErrUnknownPanel
	}

	values, body, err := s.Encode(def, raw)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			s.observe(def.ID, OutcomeValidation, started)
		}
		return State{}, err
	}

	release, err := s.locker.Acquire(ctx, scope, def.ID)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			s.observe(def.ID, OutcomeBusy, started)
		}
		return State{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release panel lock", slog.String("panel", def.ID), slog.Any("error", err))
		}
	}()

	state, err := s.store.Load(ctx, scope, def.ID)
	if err != nil {
		return State{}, err
	}
	state = state.begin(values, uuid.NewString(), s.now())
	if err := s.store.Save(ctx, scope, def.ID, state); err != nil {
		return State{}, err
	}

	result, outcome, dispatchErr := s.dispatch(ctx, def, body)
	saveCtx := context.WithoutCancel(ctx)
	if dispatchErr != nil {
		s.logger.Warn("panel submission failed",
			slog.String("panel", def.ID),
			slog.String("endpoint", def.Endpoint),
			slog.String("submission", state.SubmissionID),
			slog.Any("error", dispatchErr))
		state = state.fail(OutcomeFailure, s.now())
		if err := s.store.Save(saveCtx, scope, def.ID, state); err != nil {
			s.logger.Error("save failed panel state", slog.String("panel", def.ID), slog.Any("error", err))
		}
		s.observe(def.ID, OutcomeFailure, started)
		return state, fmt.Errorf("%w: %w", ErrDispatch, dispatchErr)
	}

	state = state.succeed(result, s.now())
	if err := s.store.Save(saveCtx, scope, def.ID, state); err != nil {
		return state, err
	}
	s.observe(def.ID, outcome, started)
	s.logger.Info("panel submission succeeded",
		slog.String("panel", def.ID),
		slog.String("submission", state.SubmissionID),
		slog.String("outcome", outcome))
	return state, nil
}

func (s *Service) dispatch(ctx context.Context, def Definition, body []byte) (json.RawMessage, string, error) {
	if def.Queued && s.queue != nil {
		taskID, err := s.queue.EnqueueTrigger(ctx, def.Endpoint, body)
		if err != nil {
			return nil, OutcomeQueued, err
		}
		receipt, err := json.Marshal(map[string]string{"status": "scheduled", "task_id": taskID})
		if err != nil {
			return nil, OutcomeQueued, err
		}
		return receipt, OutcomeQueued, nil
	}
	if s.dispatcher == nil {
		return nil, OutcomeFailure, errors.New("panel: no dispatcher configured")
	}
	result, err := s.dispatcher.Post(ctx, def.Endpoint, body)
	return result, OutcomeSuccess, err
}

func (s *Service) observe(panelID, outcome string, started time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveSubmission(panelID, outcome, s.now().Sub(started))
}
