// SPDX-License-Identifier: MPL-2.0

// Package testutil provides fixture writers shared by the package tests:
// workspace files, local repository POMs and a scratch home directory.
package testutil
