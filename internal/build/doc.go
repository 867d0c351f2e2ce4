// SPDX-License-Identifier: MPL-2.0

// Package build runs the module stages of a workspace in dependency order.
//
// Each module moves through resolve, generate, compile and then, from the
// compiled classes, assemble and test side by side. A failure in any stage
// but test blocks the module's dependents; unrelated modules continue. A
// failing test run marks its module failed without blocking dependents,
// which only consume main classes and archives.
package build
