// Package submit turns job requests into vendor calls and returns the handle
// the job can later be polled with.
package submit

import (
	"context"
	"errors"
	"strings"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/logging"
	"github.com/psantana5/dreamina/pkg/models"
)

// ErrNoHandle is wrapped by the protocol error returned when a successful
// response carries no submit_id or resource_uri.
var ErrNoHandle = errors.New("response carried no job handle")

type Options struct {
	AgentScene string
	Logger     *logging.Logger
}

// Submitter sends job requests. It holds no per-job state.
type Submitter struct {
	caller     client.Caller
	agentScene string
	logger     *logging.Logger
}

func New(caller client.Caller, opts Options) *Submitter {
	return &Submitter{
		caller:     caller,
		agentScene: opts.AgentScene,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

type submitData struct {
	SubmitID    string `json:"submit_id"`
	ResourceURI string `json:"resource_uri"`
}

// Submit validates req, sends it and returns its handle. Nothing is sent when
// validation fails. For uploads the handle is the content URI.
func (s *Submitter) Submit(ctx context.Context, req models.JobRequest) (models.JobHandle, error) {
	op, payload, err := BuildPayload(req, s.agentScene)
	if err != nil {
		return "", err
	}

	resp, err := s.caller.Call(ctx, op, payload, 0)
	if err != nil {
		return "", err
	}

	var data submitData
	if err := resp.DecodeData(&data); err != nil {
		return "", apierr.Protocol(op.Name, "malformed data member", err)
	}

	handle := data.SubmitID
	if req.Kind() == models.KindUpload {
		handle = data.ResourceURI
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", apierr.Protocol(op.Name, "missing job handle", ErrNoHandle)
	}

	s.logger.Info().
		Str("kind", string(req.Kind())).
		Str("handle", handle).
		Msg("job submitted")
	return models.JobHandle(handle), nil
}
