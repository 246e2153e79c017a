package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch marks upstream failures worth retrying later: rate
	// limiting, timeouts, 5xx responses, an open circuit breaker.
	ErrTransientFetch = errors.New("transient fetch error")

	// ErrMissingUpstreamFile marks a required input file that does not exist.
	ErrMissingUpstreamFile = errors.New("missing upstream file")

	// ErrSchema marks an upstream response or stored file whose shape cannot be
	// mapped without corrupting the merged dataset.
	ErrSchema = errors.New("unexpected schema")

	// ErrNoTimestampColumn marks a stored history whose header lacks the
	// timestamp column. It is an ErrSchema.
	ErrNoTimestampColumn = fmt.Errorf("no timestamp column: %w", ErrSchema)
)
