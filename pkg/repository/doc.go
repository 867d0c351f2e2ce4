// SPDX-License-Identifier: MPL-2.0

// Package repository provides read-only access to third-party library
// metadata and archives.
//
// The resolver consumes a MetadataSource to discover transitive
// dependencies and BOM-managed versions; the compile and assembly stages use
// an ArtifactLocator to find the archive that backs a pinned coordinate.
// Two implementations are provided: Local reads a Maven-layout directory
// tree (POM files plus jars), and Memory is an in-process source used by
// tests and tooling.
package repository
