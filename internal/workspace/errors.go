package workspace

import "fmt"

// RequestError is a resolution failure of one request of a batch.
type RequestError struct {
	Index   int
	Command Command
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request #%d (%s): %v", e.Index, e.Command, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
