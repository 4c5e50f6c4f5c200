package cloudsync

import "fmt"

// RemoteFetchError reports a failed seed pull. The client falls back to the
// local document and does not retry.
type RemoteFetchError struct {
	UID string
	Err error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch remote document for %s: %v", e.UID, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// RemoteWriteError reports a failed push. The next change tries again.
type RemoteWriteError struct {
	UID string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("push remote document for %s: %v", e.UID, e.Err)
}

func (e *RemoteWriteError) Unwrap() error {
	return e.Err
}
