// SPDX-License-Identifier: MPL-2.0

// Package issue holds mason's user-facing error catalog.
//
// ActionableError carries the operation, resource and suggestions for a
// failure; its Issue field links it to a catalog entry whose Markdown body
// the CLI renders with glamour.
package issue
