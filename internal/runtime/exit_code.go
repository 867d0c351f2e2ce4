// SPDX-License-Identifier: MPL-2.0

package runtime

import "strconv"

// Shell statuses for commands that never started.
const (
	statusNotExecutable ExitCode = 126
	statusNotFound      ExitCode = 127
)

// ExitCode is the status a command template finished with. Templates that
// fail before running anything report 1.
type ExitCode int

// IsSuccess reports a zero status.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// LaunchFailed reports the shell statuses for a tool that could not be
// started: not found or not executable.
func (c ExitCode) LaunchFailed() bool { return c == statusNotExecutable || c == statusNotFound }

// Signaled reports whether the status follows the shell convention for a
// process killed by a signal (128+n).
func (c ExitCode) Signaled() bool { return c > 128 && c <= 255 }

func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
