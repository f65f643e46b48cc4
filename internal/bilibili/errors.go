package bilibili

import "errors"

var (
	// ErrMetadataUnavailable means the content metadata could not be fetched
	// or failed validation.
	ErrMetadataUnavailable = errors.New("content metadata unavailable")

	// ErrFormatUnsupported means the manifest has no usable DASH streams.
	ErrFormatUnsupported = errors.New("stream format unsupported")

	// ErrSidecarUnavailable means a danmaku or comments sidecar could not be fetched.
	ErrSidecarUnavailable = errors.New("sidecar unavailable")

	// ErrInvalidID means the input is neither a BV id nor an av id.
	ErrInvalidID = errors.New("invalid content id")
)
