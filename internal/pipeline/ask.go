package pipeline

import (
	"context"
)

// Response is the request/response form of a cycle: either a structured
// answer encoded as JSON or a single human-readable error.
type Response struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ask runs a cycle detached from ctx. Cancellation is advisory: the cycle and
// its in-flight provider and model calls continue, and a caller whose ctx
// ends first gets ErrCanceled instead of the response.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	out := make(chan Response, 1)
	go func() {
		out <- s.respond(context.WithoutCancel(ctx), req)
	}()
	select {
	case <-ctx.Done():
		return Response{}, ErrCanceled
	case resp := <-out:
		return resp, nil
	}
}

func (s *Service) respond(ctx context.Context, req Request) Response {
	res, err := s.Run(ctx, req)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	result, err := res.Answer.JSON()
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	return Response{Success: true, Result: result}
}
