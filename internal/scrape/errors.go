package scrape

import "errors"

var (
	// ErrTransport wraps network and upstream HTTP failures.
	ErrTransport = errors.New("scrape: transport error")
	// ErrConfig indicates a misconfigured adapter, such as a missing API key.
	ErrConfig = errors.New("scrape: adapter configuration error")
	// ErrInvalidBoard indicates a forum board name outside the allowed charset.
	ErrInvalidBoard = errors.New("scrape: invalid board name")
)
