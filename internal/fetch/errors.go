package fetch

import "fmt"

// NetworkError reports an unreachable remote resource or a failed HTTP exchange.
type NetworkError struct {
	URL    string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFound reports a 404 response.
func (e *NetworkError) NotFound() bool { return e.Status == 404 }

// ExtractionError reports a corrupt archive or an unwritable destination.
type ExtractionError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("extract %s (%s): %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
