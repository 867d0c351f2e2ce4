// SPDX-License-Identifier: MPL-2.0

package classfile

import "strings"

type (
	// classRef is one class named by a descriptor or signature. s[start:end]
	// is the outermost internal name; name adds "$Inner" for nested types
	// written with '.' in generic signatures.
	classRef struct {
		start, end int
		name       string
	}

	// sigParser reads field descriptors, method descriptors and generic
	// signatures as laid out in JVMS 4.3 and 4.7.9.1.
	sigParser struct {
		s    string
		i    int
		refs []classRef
	}
)

// parseDescriptor returns the classes named by s when the whole of s is a
// well-formed descriptor or signature. ok is false for any other text.
func parseDescriptor(s string) (refs []classRef, ok bool) {
	if s == "" {
		return nil, false
	}
	p := &sigParser{s: s}
	if !p.signature() || p.i != len(s) {
		return nil, false
	}
	return p.refs, true
}

func (p *sigParser) peek() byte {
	if p.i < len(p.s) {
		return p.s[p.i]
	}
	return 0
}

func (p *sigParser) eat(c byte) bool {
	if p.peek() == c {
		p.i++
		return true
	}
	return false
}

// signature accepts a field type, a method descriptor or signature, or a
// class signature (type parameters, superclass, interfaces).
func (p *sigParser) signature() bool {
	if p.peek() == '<' && !p.typeParameters() {
		return false
	}
	if p.peek() == '(' {
		return p.methodTail()
	}
	if !p.javaType() {
		return false
	}
	for p.peek() == 'L' {
		if !p.classType() {
			return false
		}
	}
	return true
}

func (p *sigParser) methodTail() bool {
	if !p.eat('(') {
		return false
	}
	for !p.eat(')') {
		if p.i >= len(p.s) || !p.javaType() {
			return false
		}
	}
	if !p.eat('V') && !p.javaType() {
		return false
	}
	for p.eat('^') {
		if !p.referenceType() {
			return false
		}
	}
	return true
}

func (p *sigParser) javaType() bool {
	switch p.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		p.i++
		return true
	}
	return p.referenceType()
}

func (p *sigParser) referenceType() bool {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		return p.typeVariable()
	case '[':
		p.i++
		return p.javaType()
	}
	return false
}

func (p *sigParser) classType() bool {
	if !p.eat('L') {
		return false
	}
	start := p.i
	for {
		if !p.ident() {
			return false
		}
		if !p.eat('/') {
			break
		}
	}
	ref := len(p.refs)
	p.refs = append(p.refs, classRef{start: start, end: p.i, name: p.s[start:p.i]})
	if p.peek() == '<' && !p.typeArguments() {
		return false
	}
	for p.eat('.') {
		from := p.i
		if !p.ident() {
			return false
		}
		p.refs[ref].name += "$" + p.s[from:p.i]
		if p.peek() == '<' && !p.typeArguments() {
			return false
		}
	}
	return p.eat(';')
}

func (p *sigParser) typeVariable() bool {
	return p.eat('T') && p.ident() && p.eat(';')
}

func (p *sigParser) typeArguments() bool {
	if !p.eat('<') {
		return false
	}
	for n := 0; ; n++ {
		if p.eat('>') {
			return n > 0
		}
		if p.eat('*') {
			continue
		}
		if !p.eat('+') {
			p.eat('-')
		}
		if !p.referenceType() {
			return false
		}
	}
}

func (p *sigParser) typeParameters() bool {
	if !p.eat('<') {
		return false
	}
	for n := 0; ; n++ {
		if p.eat('>') {
			return n > 0
		}
		if !p.ident() || !p.eat(':') {
			return false
		}
		// The class bound is empty when only interface bounds follow.
		if c := p.peek(); (c == 'L' || c == 'T' || c == '[') && !p.referenceType() {
			return false
		}
		for p.eat(':') {
			if !p.referenceType() {
				return false
			}
		}
	}
}

func (p *sigParser) ident() bool {
	start := p.i
	for p.i < len(p.s) && !strings.ContainsRune(".;[/<>:", rune(p.s[p.i])) {
		p.i++
	}
	return p.i > start
}
