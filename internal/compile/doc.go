// SPDX-License-Identifier: MPL-2.0

// Package compile drives the Java compiler for one module source set.
//
// Sources are passed to the compiler through an argument file; the classpath
// is derived from the module's resolved graph and the class directories of
// its internal dependencies. The compiler itself is a command template run
// by internal/runtime, so the default javac invocation can be replaced by
// configuration.
package compile
