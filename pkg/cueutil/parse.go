// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema is an embedded CUE source and the definition files are decoded
// against, such as "#Module" or "#Lock".
type Schema struct {
	src        []byte
	definition string
}

// NewSchema pairs schema source with its root definition.
func NewSchema(src []byte, definition string) Schema {
	return Schema{src: src, definition: definition}
}

// Definition returns the root definition path.
func (s Schema) Definition() string { return s.definition }

// Decode unifies data with the schema definition, validates it and decodes
// the result into a T. Errors carry the filename and the CUE path of the
// offending field.
func Decode[T any](s Schema, data []byte, opts ...Option) (*T, error) {
	o := decodeOptions{maxFileSize: DefaultMaxFileSize, filename: "<input>"}
	for _, opt := range opts {
		opt(&o)
	}
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return nil, err
	}

	// A cue.Context is not safe for concurrent use, so each decode owns one.
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(s.src)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal error: compile schema: %w", err)
	}
	root := schema.LookupPath(cue.ParsePath(s.definition))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("internal error: schema has no %s: %w", s.definition, err)
	}

	user := ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := user.Err(); err != nil {
		return nil, FormatError(err, o.filename)
	}
	unified := root.Unify(user)
	if err := unified.Validate(cue.Concrete(!o.partial)); err != nil {
		return nil, FormatError(err, o.filename)
	}

	out := new(T)
	if err := unified.Decode(out); err != nil {
		return nil, FormatError(err, o.filename)
	}
	return out, nil
}

// DecodeFile reads path and decodes it, reporting errors against the base
// name of the file unless WithFilename says otherwise.
func DecodeFile[T any](s Schema, path string, opts ...Option) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	opts = append([]Option{WithFilename(filepath.Base(path))}, opts...)
	return Decode[T](s, data, opts...)
}
