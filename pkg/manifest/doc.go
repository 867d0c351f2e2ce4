// SPDX-License-Identifier: MPL-2.0

// Package manifest loads the declarative inputs of a build: the workspace
// file listing module directories, one module manifest per module, and the
// central version catalog that becomes the read-only ConstraintTable.
//
// Module manifests and the workspace file are CUE documents validated
// against embedded schemas. The version catalog is TOML with property
// placeholders, profile overrides and platform (BOM) imports.
package manifest
