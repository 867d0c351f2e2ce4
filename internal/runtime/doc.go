// SPDX-License-Identifier: MPL-2.0

// Package runtime runs the external tool command templates used by code
// generation, compilation and test launching.
//
// A command template is a POSIX shell snippet interpreted in-process by
// mvdan.cc/sh. Tools receive their inputs through MASON_* environment
// variables and positional parameters ("$@"), so templates never quote file
// lists themselves. Output is always captured and optionally teed to the
// caller's writers.
package runtime
