package api

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers transport failures, timeouts and non-200 responses
	ErrNetwork = errors.New("network failure")
	// ErrDecode means the body arrived but was not the expected JSON
	ErrDecode = errors.New("decode failure")
)

// FetchError is returned by every Client fetch. Kind is ErrNetwork or ErrDecode.
type FetchError struct {
	Kind error
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%v fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func networkError(url string, err error) *FetchError {
	return &FetchError{Kind: ErrNetwork, URL: url, Err: err}
}

func decodeError(url string, err error) *FetchError {
	return &FetchError{Kind: ErrDecode, URL: url, Err: err}
}
