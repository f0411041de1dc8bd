package shapefile

import "fmt"

// FormatError reports a missing, unreadable or inconsistent vector dataset.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shapefile %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("shapefile %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }
