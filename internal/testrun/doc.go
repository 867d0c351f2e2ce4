// SPDX-License-Identifier: MPL-2.0

// Package testrun discovers compiled test classes and runs them in isolated
// JVM processes.
//
// Test processes are launched from a command template. The launched runner
// reports results on standard output with one line per test:
//
//	##mason[test=com.starrocks.qe.ConnectContextTest status=passed duration_ms=412]
//	##mason[test=com.starrocks.qe.ConnectContextTest#testKill status=failed message='expected <1>|n but was <2>']
//
// Message values use single quotes; "|'" escapes a quote, "|n" a newline and
// "||" a bar. Classes that report nothing inherit the status of their
// process exit code.
package testrun
