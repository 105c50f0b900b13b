// Package poller waits for a submitted job to reach a terminal status.
package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/logging"
	"github.com/psantana5/dreamina/pkg/models"
)

// Budget bounds a wait. Timeout is an optional wall-clock limit; whichever of
// MaxAttempts or Timeout is exhausted first ends the wait with TimedOut.
type Budget struct {
	MaxAttempts int           `json:"max_attempts"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

func (b Budget) validate() error {
	if b.MaxAttempts < 1 {
		return apierr.Validation("max attempts must be at least 1, got %d", b.MaxAttempts)
	}
	if b.Interval < 0 {
		return apierr.Validation("interval must not be negative")
	}
	return nil
}

// Attempt describes one status query, passed to OnAttempt.
type Attempt struct {
	N      int
	Max    int
	Status models.Status
	Err    error
}

type Options struct {
	Logger *logging.Logger
	// OnAttempt is called after every query, from the polling goroutine.
	OnAttempt func(Attempt)
}

// Poller queries job status until a terminal state or budget exhaustion.
// It keeps no state between calls and is safe for concurrent use.
type Poller struct {
	caller    client.Caller
	logger    *logging.Logger
	onAttempt func(Attempt)
}

func New(caller client.Caller, opts Options) *Poller {
	return &Poller{
		caller:    caller,
		logger:    logging.OrDiscard(opts.Logger),
		onAttempt: opts.OnAttempt,
	}
}

type queryBody struct {
	SubmitIDs  []string `json:"submit_ids"`
	NeedBatch  bool     `json:"need_batch"`
	HistoryIDs []string `json:"history_ids"`
}

type historyData struct {
	HistoryList []models.RawResult `json:"history_list"`
}

// Query issues a single status request. Unlike Poll, errors are returned.
func (p *Poller) Query(ctx context.Context, handle models.JobHandle) (models.Status, *models.RawResult, error) {
	if handle == "" {
		return models.Status{}, nil, apierr.Validation("handle is required")
	}
	resp, err := p.caller.Call(ctx, client.OpQuery, queryBody{
		SubmitIDs:  []string{string(handle)},
		NeedBatch:  true,
		HistoryIDs: []string{},
	}, 0)
	if err != nil {
		return models.Status{}, nil, err
	}

	record, err := findRecord(resp, handle)
	if err != nil {
		return models.Status{}, nil, err
	}
	if record.Empty() {
		return models.NoRecord(), nil, nil
	}
	return models.Classify(record.Status, record.FailMsg), record, nil
}

// findRecord looks up data.<handle>, falling back to data.history_list[0].
func findRecord(resp *client.Response, handle models.JobHandle) (*models.RawResult, error) {
	var data map[string]json.RawMessage
	if err := resp.DecodeData(&data); err != nil {
		return nil, apierr.Protocol(client.OpQuery.Name, "malformed data member", err)
	}

	if raw, ok := data[string(handle)]; ok {
		var rec models.RawResult
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, apierr.Protocol(client.OpQuery.Name, "malformed history record", err)
		}
		if !rec.Empty() {
			return &rec, nil
		}
	}

	if raw, ok := data["history_list"]; ok {
		var list []models.RawResult
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, apierr.Protocol(client.OpQuery.Name, "malformed history list", err)
		}
		if len(list) > 0 {
			return &list[0], nil
		}
	}
	return nil, nil
}

// Poll queries handle until it succeeds, fails or the budget runs out.
// Per-attempt errors are logged and the loop continues. Cancellation of ctx
// returns ctx.Err() and no outcome.
func (p *Poller) Poll(ctx context.Context, handle models.JobHandle, b Budget) (models.Outcome, error) {
	if err := b.validate(); err != nil {
		return models.Outcome{}, err
	}
	if handle == "" {
		return models.Outcome{}, apierr.Validation("handle is required")
	}

	var deadline <-chan time.Time
	if b.Timeout > 0 {
		t := time.NewTimer(b.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	log := p.logger.With().Str("handle", string(handle)).Logger()

	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		status, record, err := p.Query(ctx, handle)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Outcome{}, ctxErr
		}

		p.notify(Attempt{N: attempt, Max: b.MaxAttempts, Status: status, Err: err})

		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("status query failed, will retry")
		} else {
			log.Debug().
				Int("attempt", attempt).
				Int("max", b.MaxAttempts).
				Str("status", status.String()).
				Msg("polled job status")

			switch status.Phase {
			case models.PhaseSucceeded:
				log.Info().Int("attempts", attempt).Msg("job succeeded")
				return models.Succeeded(handle, record, attempt), nil
			case models.PhaseFailed:
				log.Info().Int("attempts", attempt).Str("reason", status.Reason).Msg("job failed")
				return models.Failed(handle, status.Reason, attempt), nil
			}
		}

		if attempt == b.MaxAttempts {
			break
		}

		select {
		case <-deadline:
			return p.timedOut(log, handle, attempt), nil
		default:
		}

		timer := time.NewTimer(b.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.Outcome{}, ctx.Err()
		case <-deadline:
			timer.Stop()
			return p.timedOut(log, handle, attempt), nil
		case <-timer.C:
		}
	}

	return p.timedOut(log, handle, b.MaxAttempts), nil
}

func (p *Poller) timedOut(log logging.Logger, handle models.JobHandle, attempts int) models.Outcome {
	log.Warn().Int("attempts", attempts).Msg("gave up waiting for job")
	return models.TimedOut(handle, attempts)
}

func (p *Poller) notify(a Attempt) {
	if p.onAttempt != nil {
		p.onAttempt(a)
	}
}
