// Package engine implements the hybrid retrieval core: graph upsert, vector
// indexing, vector + graph retrieval with joint ranking, token-bounded
// context assembly, and the build pipeline that feeds them.
package engine

import "errors"

var (
	// ErrInvalidArgument indicates bad caller input, rejected before any
	// collaborator call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRetrievalTimeout indicates the query was cancelled or its deadline
	// passed. No partial result is returned.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrTemplate indicates a malformed or unknown prompt template.
	// Malformed templates fail at registration, never at call time.
	ErrTemplate = errors.New("invalid template")
)
