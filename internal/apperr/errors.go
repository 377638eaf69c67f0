package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the failure categories the API surfaces. Handlers map
// these to HTTP statuses via StatusCode; services wrap them with %w so
// errors.Is keeps working through the call chain.
var (
	// ErrUnsupportedSource means the URL shape is not recognized. Raised
	// before any network call; user-correctable.
	ErrUnsupportedSource = errors.New("unsupported source URL")

	// ErrTranscription means the transcription model failed. Not retried.
	ErrTranscription = errors.New("transcription failed")

	// ErrEmbeddingBatch means at least one chunk in a batch failed to embed,
	// so the whole batch was rejected and no source was created.
	ErrEmbeddingBatch = errors.New("embedding batch failed")

	// ErrNotFound means the requested source does not exist or is owned by
	// another user. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("source not found")

	// ErrDuplicateSource means the (owner, URL) pair is already ingested.
	ErrDuplicateSource = errors.New("source already exists")

	// ErrAuth means the bearer token is missing, malformed, or expired.
	ErrAuth = errors.New("unauthorized")
)

// StrategyFailure records one acquisition strategy's failure.
type StrategyFailure struct {
	Strategy string
	Err      error
}

// AcquisitionError aggregates the failures of every strategy in the chain.
// It is returned only when the whole chain has been exhausted.
type AcquisitionError struct {
	URL      string
	Failures []StrategyFailure
}

// Error implements the error interface.
// Parameters: none.
// Returns:
//   - string: summary naming each strategy and its cause.
func (e *AcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d acquisition strategies failed for %s", len(e.Failures), e.URL)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Strategy, f.Err)
	}
	return b.String()
}

// Unwrap exposes the last strategy's error for errors.Is/As chains.
func (e *AcquisitionError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

// StatusCode maps an error to the HTTP status the API should return.
// Parameters:
//   - err: error to classify.
// Returns:
//   - int: HTTP status code; 500 for anything unclassified.
func StatusCode(err error) int {
	var acq *AcquisitionError
	switch {
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnsupportedSource):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateSource):
		return http.StatusConflict
	case errors.As(err, &acq):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTranscription), errors.Is(err, ErrEmbeddingBatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the highest-level cause suitable for API responses,
// without internal detail. Unclassified errors collapse to a generic message;
// the full chain is expected to be logged server-side by the caller.
func UserMessage(err error) string {
	var acq *AcquisitionError
	switch {
	case errors.Is(err, ErrAuth):
		return "unauthorized"
	case errors.Is(err, ErrUnsupportedSource):
		return "unsupported URL: only video and podcast links are accepted"
	case errors.Is(err, ErrNotFound):
		return "source not found"
	case errors.Is(err, ErrDuplicateSource):
		return "this source has already been added"
	case errors.As(err, &acq):
		return "could not fetch audio from the source, please try again later"
	case errors.Is(err, ErrTranscription):
		return "transcription failed"
	case errors.Is(err, ErrEmbeddingBatch):
		return "indexing failed, the source was not saved"
	default:
		return "internal error, please try again"
	}
}
