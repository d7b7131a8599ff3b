package transport

import "fmt"

// APIError is a non-success HTTP response from the remote service,
// surfaced after retries are exhausted.
type APIError struct {
	StatusCode int
	Excerpt    string
	Attempts   int
}

func (e *APIError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("api request failed with status %d after %d attempts", e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("api request failed with status %d after %d attempts: %s", e.StatusCode, e.Attempts, e.Excerpt)
}

// TransportError is a network-level failure (connection refused,
// timeout), surfaced after retries are exhausted.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
