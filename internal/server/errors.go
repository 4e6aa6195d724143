package server

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/explorer"
	"LiqWatch/internal/persistence"
	"LiqWatch/internal/query"
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeFor(err), err.Error())
}

func codeFor(err error) codes.Code {
	var apiErr *explorer.APIError
	switch {
	case errors.Is(err, query.ErrInvalidArgument), errors.Is(err, chain.ErrInvalidAddress):
		return codes.InvalidArgument
	case errors.Is(err, persistence.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, query.ErrNotReady), errors.Is(err, query.ErrUnavailable):
		return codes.Unavailable
	case errors.As(err, &apiErr):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}
