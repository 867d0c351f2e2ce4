// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emicklei/proto"
)

var grammarHeader = regexp.MustCompile(`^(?:(lexer|parser)\s+)?grammar\s+([A-Za-z_][A-Za-z0-9_]*)\s*;`)

// validateGrammar checks that a grammar file opens with a grammar
// declaration whose name matches the file name.
func validateGrammar(path string, data []byte) error {
	body, err := skipLeadingComments(data)
	if err != nil {
		return err
	}
	m := grammarHeader.FindSubmatch(body)
	if m == nil {
		return errors.New("missing grammar declaration")
	}
	name := string(m[2])
	if want := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)); name != want {
		return fmt.Errorf("grammar %s must be declared in %s%s", name, name, filepath.Ext(path))
	}
	return nil
}

// skipLeadingComments strips whitespace, line comments and block comments
// preceding the first declaration.
func skipLeadingComments(data []byte) ([]byte, error) {
	for {
		data = bytes.TrimLeft(data, " \t\r\n\ufeff")
		switch {
		case bytes.HasPrefix(data, []byte("//")):
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				return nil, nil
			}
			data = data[i+1:]
		case bytes.HasPrefix(data, []byte("/*")):
			i := bytes.Index(data[2:], []byte("*/"))
			if i < 0 {
				return nil, errors.New("unterminated block comment")
			}
			data = data[i+4:]
		default:
			return data, nil
		}
	}
}

// validateSchema parses a schema file.
func validateSchema(path string, data []byte) error {
	parser := proto.NewParser(bytes.NewReader(data))
	parser.Filename(path)
	if _, err := parser.Parse(); err != nil {
		return err
	}
	return nil
}
