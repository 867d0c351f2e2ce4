// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes CUE files against embedded schemas. Module
// manifests, workspace files, lock files and the configuration loader all
// go through it:
//
//	//go:embed module_schema.cue
//	var moduleSchemaSrc []byte
//
//	var moduleSchema = cueutil.NewSchema(moduleSchemaSrc, "#Module")
//
//	m, err := cueutil.Decode[moduleFile](moduleSchema, data, cueutil.WithFilename("module.cue"))
//
// Errors name the file and the CUE path of the offending field, for example
// "module.cue: dependencies[2].scope: 4 errors in empty disjunction".
package cueutil
