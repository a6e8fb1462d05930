package models

import "errors"

var (
	// ErrInvalidAddress is returned for malformed MAC or IP input.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidRange is returned for subnet bounds outside 0-255 or out of order.
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotFound means a complete sweep found no matching neighbor entry.
	ErrNotFound = errors.New("device not found")
	// ErrScanAborted means the sweep hit its deadline before finishing.
	ErrScanAborted = errors.New("scan aborted before completion")
)
