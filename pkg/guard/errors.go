package guard

import (
	qerrors "github.com/vango-dev/queryguard/internal/errors"
)

// Sentinel errors. Match them with errors.Is; the returned errors wrap the
// underlying cause.
var (
	// ErrNoAdapter is returned by New when Options.Adapter is nil.
	ErrNoAdapter = qerrors.New("Q101")

	// ErrNoResolver is returned by New when Options.Resolver is nil.
	ErrNoResolver = qerrors.New("Q102")

	// ErrInvalidOption is returned for an unknown policy, history or reset mode.
	ErrInvalidOption = qerrors.New("Q103")

	// ErrResolve wraps a hard failure of Resolver.Resolve.
	ErrResolve = qerrors.New("Q110")

	// ErrSerialize wraps a failure of Resolver.Serialize.
	ErrSerialize = qerrors.New("Q111")

	// ErrPersist wraps a failure of Adapter.SetSearch.
	ErrPersist = qerrors.New("Q120")
)
