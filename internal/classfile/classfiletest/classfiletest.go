// SPDX-License-Identifier: MPL-2.0

// Package classfiletest synthesizes class files and archives for tests.
package classfiletest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

type (
	// Class describes a class file to synthesize. Names are internal names.
	Class struct {
		Name string
		// Super defaults to java/lang/Object.
		Super      string
		Interfaces []string
		// Refs become class constants, as produced by new, checkcast or
		// static calls.
		Refs []string
		// Strings become string constants.
		Strings []string
		Fields  []Field
		// Methods are declared abstract, so they carry no code.
		Methods []Field
		// Longs add wide constants to exercise two-slot pool entries.
		Longs []int64
	}

	// Field is a field or method declaration with a descriptor such as
	// "Lcom/google/common/base/Joiner;" or "(ILjava/lang/String;)V".
	Field struct {
		Name       string
		Descriptor string
	}

	pool struct {
		buf   bytes.Buffer
		count uint16
		utf8  map[string]uint16
		class map[string]uint16
		str   map[string]uint16
	}
)

func newPool() *pool {
	return &pool{count: 1, utf8: map[string]uint16{}, class: map[string]uint16{}, str: map[string]uint16{}}
}

func (p *pool) u2(v uint16) { binary.Write(&p.buf, binary.BigEndian, v) } //nolint:errcheck // bytes.Buffer

func (p *pool) Utf8(s string) uint16 {
	if i, ok := p.utf8[s]; ok {
		return i
	}
	p.buf.WriteByte(1)
	p.u2(uint16(len(s)))
	p.buf.WriteString(s)
	p.utf8[s] = p.count
	p.count++
	return p.utf8[s]
}

func (p *pool) Class(name string) uint16 {
	if i, ok := p.class[name]; ok {
		return i
	}
	n := p.Utf8(name)
	p.buf.WriteByte(7)
	p.u2(n)
	p.class[name] = p.count
	p.count++
	return p.class[name]
}

func (p *pool) String(s string) uint16 {
	if i, ok := p.str[s]; ok {
		return i
	}
	n := p.Utf8(s)
	p.buf.WriteByte(8)
	p.u2(n)
	p.str[s] = p.count
	p.count++
	return p.str[s]
}

func (p *pool) Long(v int64) {
	p.buf.WriteByte(5)
	binary.Write(&p.buf, binary.BigEndian, v) //nolint:errcheck // bytes.Buffer
	p.count += 2
}

// Build encodes c as a class file with major version 52.
func Build(c Class) []byte {
	super := c.Super
	if super == "" {
		super = "java/lang/Object"
	}
	p := newPool()
	this := p.Class(c.Name)
	superIdx := p.Class(super)
	ifaces := make([]uint16, 0, len(c.Interfaces))
	for _, i := range c.Interfaces {
		ifaces = append(ifaces, p.Class(i))
	}
	for _, r := range c.Refs {
		p.Class(r)
	}
	for _, s := range c.Strings {
		p.String(s)
	}
	for _, l := range c.Longs {
		p.Long(l)
	}
	type fieldIdx struct{ name, desc uint16 }
	fields := make([]fieldIdx, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, fieldIdx{p.Utf8(f.Name), p.Utf8(f.Descriptor)})
	}
	methods := make([]fieldIdx, 0, len(c.Methods))
	for _, m := range c.Methods {
		methods = append(methods, fieldIdx{p.Utf8(m.Name), p.Utf8(m.Descriptor)})
	}

	var b bytes.Buffer
	w := func(v any) { binary.Write(&b, binary.BigEndian, v) } //nolint:errcheck // bytes.Buffer
	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(52))
	w(p.count)
	b.Write(p.buf.Bytes())
	w(uint16(0x0021))
	w(this)
	w(superIdx)
	w(uint16(len(ifaces)))
	for _, i := range ifaces {
		w(i)
	}
	w(uint16(len(fields)))
	for _, f := range fields {
		w(uint16(0x0002))
		w(f.name)
		w(f.desc)
		w(uint16(0))
	}
	w(uint16(len(methods)))
	for _, m := range methods {
		w(uint16(0x0401))
		w(m.name)
		w(m.desc)
		w(uint16(0))
	}
	w(uint16(0)) // attributes
	return b.Bytes()
}

// Entries maps archive entry names to content.
type Entries map[string][]byte

// AddClass adds the class file for c under its entry name.
func (e Entries) AddClass(c Class) Entries {
	e[c.Name+".class"] = Build(c)
	return e
}

// WriteJar writes entries to dir/name as a zip archive, in sorted entry
// order, and returns its path.
func WriteJar(tb testing.TB, dir, name string, entries Entries) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatal(err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range slices.Sorted(maps.Keys(entries)) {
		w, err := zw.Create(n)
		if err != nil {
			tb.Fatal(err)
		}
		if _, err := w.Write(entries[n]); err != nil {
			tb.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		tb.Fatal(err)
	}
	return path
}

// WriteDir writes entries below dir, as a compiler class directory would.
func WriteDir(tb testing.TB, dir string, entries Entries) {
	tb.Helper()
	for n, data := range entries {
		p := filepath.Join(dir, filepath.FromSlash(n))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			tb.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			tb.Fatal(err)
		}
	}
}
