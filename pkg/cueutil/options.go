// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize bounds every decoded file (5MB).
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

type (
	decodeOptions struct {
		maxFileSize int64
		partial     bool
		filename    string
	}

	// Option configures a decode.
	Option func(*decodeOptions)
)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(o *decodeOptions) { o.maxFileSize = size }
}

// WithPartial accepts non-concrete values, as in configuration files where
// every field is optional and defaults come from elsewhere.
func WithPartial() Option {
	return func(o *decodeOptions) { o.partial = true }
}

// WithFilename sets the name errors are reported against.
func WithFilename(name string) Option {
	return func(o *decodeOptions) { o.filename = name }
}
