package rag

import "errors"

var (
	ErrEmptyQuery       = errors.New("empty query")
	ErrRetrieval        = errors.New("retrieval failed")
	ErrIndexUnavailable = errors.New("index unavailable")
)
