// Package orchestrator composes submission and polling into one call and
// records what happened in the local history.
package orchestrator

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/extract"
	"github.com/psantana5/dreamina/pkg/logging"
	"github.com/psantana5/dreamina/pkg/metrics"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/poller"
	"github.com/psantana5/dreamina/pkg/store"
	"github.com/psantana5/dreamina/pkg/submit"
	"github.com/psantana5/dreamina/pkg/tracing"
)

type Options struct {
	AgentScene string
	Logger     *logging.Logger
	// History is optional. Write failures are logged and otherwise ignored.
	History   store.Store
	Metrics   *metrics.Recorder
	Tracer    *tracing.Provider
	OnAttempt func(poller.Attempt)
}

type Orchestrator struct {
	submitter *submit.Submitter
	poller    *poller.Poller
	history   store.Store
	metrics   *metrics.Recorder
	tracer    *tracing.Provider
	logger    *logging.Logger
}

func New(caller client.Caller, opts Options) *Orchestrator {
	logger := logging.OrDiscard(opts.Logger)
	return &Orchestrator{
		submitter: submit.New(caller, submit.Options{AgentScene: opts.AgentScene, Logger: logger}),
		poller:    poller.New(caller, poller.Options{Logger: logger, OnAttempt: opts.OnAttempt}),
		history:   opts.History,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    logger,
	}
}

// Submit sends req and returns its handle without waiting.
func (o *Orchestrator) Submit(ctx context.Context, req models.JobRequest) (models.JobHandle, error) {
	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.submit")
	defer span.End()

	handle, err := o.submitter.Submit(ctx, req)
	if err != nil {
		tracing.SetError(ctx, err)
		return "", err
	}
	if req.Kind() != models.KindUpload {
		o.record(ctx, req, handle)
	}
	return handle, nil
}

// SubmitAndWait submits req and polls it to completion. A zero budget uses
// DefaultBudget for the request's kind. A response without a handle yields a
// Failed outcome; every other submission error is returned.
func (o *Orchestrator) SubmitAndWait(ctx context.Context, req models.JobRequest, budget poller.Budget) (models.Outcome, error) {
	if req == nil {
		return models.Outcome{}, apierr.Validation("request is required")
	}
	if req.Kind() == models.KindUpload {
		return models.Outcome{}, apierr.Validation("uploads complete synchronously; use Submit")
	}
	if budget == (poller.Budget{}) {
		budget = DefaultBudget(req.Kind())
	}

	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.submit_and_wait",
		attribute.String("kind", string(req.Kind())),
		attribute.Int("max_attempts", budget.MaxAttempts),
	)
	defer span.End()

	handle, err := o.submitter.Submit(ctx, req)
	if errors.Is(err, submit.ErrNoHandle) {
		o.logger.Warn().Str("kind", string(req.Kind())).Msg("submission returned no handle")
		out := models.Failed("", models.NoHandleReason, 0)
		o.metrics.ObserveOutcome(string(req.Kind()), string(out.State), 0)
		return out, nil
	}
	if err != nil {
		tracing.SetError(ctx, err)
		return models.Outcome{}, err
	}
	span.SetAttributes(attribute.String("handle", string(handle)))
	o.record(ctx, req, handle)

	return o.wait(ctx, req.Kind(), handle, budget)
}

// Wait polls an already submitted handle and records the outcome. kind may be
// empty when unknown.
func (o *Orchestrator) Wait(ctx context.Context, kind models.Kind, handle models.JobHandle, budget poller.Budget) (models.Outcome, error) {
	if budget == (poller.Budget{}) {
		budget = DefaultBudget(kind)
	}
	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.wait", attribute.String("handle", string(handle)))
	defer span.End()
	return o.wait(ctx, kind, handle, budget)
}

// Query returns the current status of handle with a single request.
func (o *Orchestrator) Query(ctx context.Context, handle models.JobHandle) (models.Status, *models.RawResult, error) {
	return o.poller.Query(ctx, handle)
}

func (o *Orchestrator) wait(ctx context.Context, kind models.Kind, handle models.JobHandle, budget poller.Budget) (models.Outcome, error) {
	out, err := o.poller.Poll(ctx, handle, budget)
	if err != nil {
		tracing.SetError(ctx, err)
		return models.Outcome{}, err
	}

	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	o.metrics.ObserveOutcome(label, string(out.State), out.Attempts)
	tracing.AddEvent(ctx, "outcome",
		attribute.String("state", string(out.State)),
		attribute.Int("attempts", out.Attempts),
	)

	if o.history != nil {
		err := o.history.UpdateOutcome(ctx, handle, string(out.State), out.Reason, extract.URLs(out.Result))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn().Err(err).Str("handle", string(handle)).Msg("failed to record outcome")
		}
	}
	return out, nil
}

func (o *Orchestrator) record(ctx context.Context, req models.JobRequest, handle models.JobHandle) {
	if o.history == nil {
		return
	}
	_, err := o.history.Record(ctx, store.Entry{
		Handle: handle,
		Kind:   req.Kind(),
		Prompt: store.PromptOf(req),
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("handle", string(handle)).Msg("failed to record submission")
	}
}
