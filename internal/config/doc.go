// SPDX-License-Identifier: MPL-2.0

// Package config handles mason configuration using Viper with CUE as the file format.
//
// Values are layered: built-in defaults, then the first mason.cue found (an
// explicit --config path, the workspace root, then the user config
// directory), then MASON_* environment variables such as MASON_WORKERS or
// MASON_TEST_ISOLATION. Files are validated against the embedded #Config
// schema before they are merged.
package config
