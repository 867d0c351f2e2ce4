// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Magic is the first four bytes of every class file.
const Magic = 0xCAFEBABE

// Constant pool tags.
const (
	TagUtf8               byte = 1
	TagInteger            byte = 3
	TagFloat              byte = 4
	TagLong               byte = 5
	TagDouble             byte = 6
	TagClass              byte = 7
	TagString             byte = 8
	TagFieldref           byte = 9
	TagMethodref          byte = 10
	TagInterfaceMethodref byte = 11
	TagNameAndType        byte = 12
	TagMethodHandle       byte = 15
	TagMethodType         byte = 16
	TagDynamic            byte = 17
	TagInvokeDynamic      byte = 18
	TagModule             byte = 19
	TagPackage            byte = 20
)

var (
	// ErrMalformed is the sentinel error wrapped by FormatError.
	ErrMalformed = errors.New("malformed class file")
	// ErrConstantTooLong is returned when a rewritten UTF-8 constant exceeds 65535 bytes.
	ErrConstantTooLong = errors.New("constant exceeds 65535 bytes")
)

type (
	// Constant is one constant pool entry. The unusable slot following a
	// long or double has Tag 0.
	Constant struct {
		Tag byte
		// Text is the content of a UTF-8 constant.
		Text string
		// Index is the first pool reference of Class, String, MethodType,
		// Module, Package and NameAndType constants.
		Index uint16
		// Index2 is the descriptor of a NameAndType constant.
		Index2 uint16
		// raw holds the undecoded body of the remaining tags.
		raw []byte
	}

	// ClassFile is a parsed class file. Pool index 0 is unused.
	ClassFile struct {
		Minor, Major uint16
		Pool         []Constant
		AccessFlags  uint16
		ThisClass    uint16
		SuperClass   uint16
		Interfaces   []uint16
		// tail is everything after the constant pool.
		tail []byte
	}

	// FormatError reports where a class file stopped making sense.
	FormatError struct {
		Offset int
		Reason string
	}
)

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed class file at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap returns ErrMalformed for errors.Is() compatibility.
func (e *FormatError) Unwrap() error { return ErrMalformed }

// IsClassFile reports whether data starts with the class file magic.
func IsClassFile(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == Magic
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if r.u4() != Magic {
		return nil, &FormatError{Offset: 0, Reason: "bad magic"}
	}
	cf := &ClassFile{Minor: r.u2(), Major: r.u2()}
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	cf.Pool = make([]Constant, count)
	for i := 1; i < count; i++ {
		c, wide := r.constant()
		if r.err != nil {
			return nil, r.err
		}
		cf.Pool[i] = c
		if wide {
			i++
		}
	}

	tailStart := r.off
	cf.AccessFlags = r.u2()
	cf.ThisClass = r.u2()
	cf.SuperClass = r.u2()
	n := int(r.u2())
	for range n {
		cf.Interfaces = append(cf.Interfaces, r.u2())
	}
	if r.err != nil {
		return nil, r.err
	}
	cf.tail = data[tailStart:]

	if cf.className(cf.ThisClass) == "" {
		return nil, &FormatError{Offset: tailStart + 2, Reason: "this_class is not a class constant"}
	}
	return cf, nil
}

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	var b bytes.Buffer
	b.Grow(len(cf.tail) + 16*len(cf.Pool))
	w := func(v any) { binary.Write(&b, binary.BigEndian, v) } //nolint:errcheck // bytes.Buffer writes do not fail
	w(uint32(Magic))
	w(cf.Minor)
	w(cf.Major)
	w(uint16(len(cf.Pool)))
	for i := 1; i < len(cf.Pool); i++ {
		c := cf.Pool[i]
		if c.Tag == 0 {
			continue
		}
		b.WriteByte(c.Tag)
		switch c.Tag {
		case TagUtf8:
			if len(c.Text) > 0xFFFF {
				return nil, fmt.Errorf("constant #%d: %w", i, ErrConstantTooLong)
			}
			w(uint16(len(c.Text)))
			b.WriteString(c.Text)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w(c.Index)
		case TagNameAndType:
			w(c.Index)
			w(c.Index2)
		default:
			b.Write(c.raw)
		}
	}
	b.Write(cf.tail)
	return b.Bytes(), nil
}

// Name returns the internal name of the class, e.g. "com/starrocks/qe/ConnectContext".
func (cf *ClassFile) Name() string { return cf.className(cf.ThisClass) }

// Super returns the internal name of the superclass, empty for java/lang/Object itself.
func (cf *ClassFile) Super() string { return cf.className(cf.SuperClass) }

// InterfaceNames returns the internal names of directly implemented interfaces.
func (cf *ClassFile) InterfaceNames() []string {
	out := make([]string, 0, len(cf.Interfaces))
	for _, i := range cf.Interfaces {
		out = append(out, cf.className(i))
	}
	return out
}

// Utf8 returns the text of the UTF-8 constant at index i.
func (cf *ClassFile) Utf8(i uint16) (string, bool) {
	if int(i) >= len(cf.Pool) || cf.Pool[i].Tag != TagUtf8 {
		return "", false
	}
	return cf.Pool[i].Text, true
}

func (cf *ClassFile) className(i uint16) string {
	if i == 0 || int(i) >= len(cf.Pool) || cf.Pool[i].Tag != TagClass {
		return ""
	}
	s, _ := cf.Utf8(cf.Pool[i].Index)
	return s
}

// References returns the internal names of every class the class file
// mentions: class constants, names inside descriptors and generic signatures,
// and string constants spelled as dotted class names. The result is sorted,
// deduplicated and excludes the class itself. It over-approximates; callers
// intersect it with the classes they actually hold.
func (cf *ClassFile) References() []string {
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" {
			seen[name] = true
		}
	}
	strs := make(map[uint16]bool)
	for _, c := range cf.Pool {
		switch c.Tag {
		case TagClass:
			name, _ := cf.Utf8(c.Index)
			if strings.HasPrefix(name, "[") {
				for _, n := range descriptorClasses(name) {
					add(n)
				}
			} else {
				add(name)
			}
		case TagString:
			strs[c.Index] = true
			if s, ok := cf.Utf8(c.Index); ok && looksLikeClassName(s) {
				add(strings.ReplaceAll(s, ".", "/"))
			}
		}
	}
	for i, c := range cf.Pool {
		if c.Tag == TagUtf8 && !strs[uint16(i)] {
			for _, n := range descriptorClasses(c.Text) {
				add(n)
			}
		}
	}
	delete(seen, cf.Name())

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// descriptorClasses returns the classes named by a field descriptor, method
// descriptor or generic signature. Text that is not one yields nil.
func descriptorClasses(s string) []string {
	refs, ok := parseDescriptor(s)
	if !ok || len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.name)
	}
	return out
}

func isNameByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

// looksLikeClassName reports whether s is a dotted, qualified identifier
// such as "com.mysql.cj.jdbc.Driver".
func looksLikeClassName(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			if !isNameByte(part[i]) || i == 0 && part[i] >= '0' && part[i] <= '9' {
				return false
			}
		}
	}
	return true
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = &FormatError{Offset: r.off, Reason: "unexpected end of data"}
		return false
	}
	return true
}

func (r *reader) u1() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v
}

// constant reads one pool entry. wide is true for long and double, which
// occupy two slots.
func (r *reader) constant() (c Constant, wide bool) {
	start := r.off
	c.Tag = r.u1()
	switch c.Tag {
	case TagUtf8:
		n := int(r.u2())
		c.Text = string(r.bytes(n))
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		c.Index = r.u2()
	case TagNameAndType:
		c.Index = r.u2()
		c.Index2 = r.u2()
	case TagInteger, TagFloat, TagFieldref, TagMethodref, TagInterfaceMethodref, TagDynamic, TagInvokeDynamic:
		c.raw = r.bytes(4)
	case TagLong, TagDouble:
		c.raw = r.bytes(8)
		wide = true
	case TagMethodHandle:
		c.raw = r.bytes(3)
	default:
		if r.err == nil {
			r.err = &FormatError{Offset: start, Reason: fmt.Sprintf("unknown constant tag %d", c.Tag)}
		}
	}
	return c, wide
}
