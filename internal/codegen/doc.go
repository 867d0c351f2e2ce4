// SPDX-License-Identifier: MPL-2.0

// Package codegen runs a module's code generation stages ahead of compilation.
//
// Each manifest stage becomes a Unit. A Registry maps the unit's kind
// (grammar or schema) to a Generator; the default generators run external
// tools through command templates. Before running, a unit's inputs are
// fingerprinted and compared with the FingerprintStore: an unchanged unit
// whose recorded output is still present is skipped. Generators write into a
// staging directory and the pipeline promotes the produced files into the
// output directory, rejecting any file already owned by another unit.
//
// Within one module, grammar units run before schema units whose output
// namespace they overlap; all other units run concurrently.
package codegen
