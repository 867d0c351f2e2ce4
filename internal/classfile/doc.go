// SPDX-License-Identifier: MPL-2.0

// Package classfile reads and rewrites the constant pool of JVM class files.
//
// Only the constant pool is decoded. Everything after it is kept as raw bytes;
// its pool indexes stay valid because rewriting replaces UTF-8 constants in
// place and never renumbers the pool. That is enough to list the classes a
// class refers to and to relocate namespaces.
package classfile
