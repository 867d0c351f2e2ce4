// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/masonbuild/mason/internal/classfile/classfiletest"
)

var connectContext = classfiletest.Class{
	Name:       "com/starrocks/qe/ConnectContext",
	Super:      "com/starrocks/common/util/Daemon",
	Interfaces: []string{"java/lang/AutoCloseable"},
	Refs:       []string{"com/google/common/base/Preconditions", "[Lcom/starrocks/catalog/Table;"},
	Strings:    []string{"com.mysql.cj.jdbc.Driver", "hello world", "fe.conf"},
	Fields: []Field{
		{Name: "joiner", Descriptor: "Lcom/google/common/base/Joiner;"},
		{Name: "tables", Descriptor: "Ljava/util/Map<Ljava/lang/String;Lcom/starrocks/catalog/Database;>;"},
	},
	Longs: []int64{1 << 40},
}

type Field = classfiletest.Field

func TestParse(t *testing.T) {
	t.Parallel()

	data := classfiletest.Build(connectContext)
	cf, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cf.Name() != "com/starrocks/qe/ConnectContext" || cf.Super() != "com/starrocks/common/util/Daemon" {
		t.Errorf("name = %s, super = %s", cf.Name(), cf.Super())
	}
	if diff := cmp.Diff([]string{"java/lang/AutoCloseable"}, cf.InterfaceNames()); diff != "" {
		t.Errorf("interfaces (-want +got):\n%s", diff)
	}

	out, err := cf.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Error("unchanged class file does not re-encode byte-identically")
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	data := classfiletest.Build(connectContext)
	tests := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte{0xCA, 0xFE, 0xD0, 0x0D}, data[4:]...),
		"truncated": data[:len(data)/2],
		"bad tag":   append(append([]byte{}, data[:10]...), append([]byte{99}, data[11:]...)...),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(in); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestReferences(t *testing.T) {
	t.Parallel()

	cf, err := Parse(classfiletest.Build(connectContext))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"com/google/common/base/Joiner",
		"com/google/common/base/Preconditions",
		"com/mysql/cj/jdbc/Driver",
		"com/starrocks/catalog/Database",
		"com/starrocks/catalog/Table",
		"com/starrocks/common/util/Daemon",
		// dotted string constants count; the caller filters to held classes
		"fe/conf",
		"java/lang/AutoCloseable",
		"java/lang/String",
		"java/util/Map",
	}
	if diff := cmp.Diff(want, cf.References()); diff != "" {
		t.Errorf("references (-want +got):\n%s", diff)
	}
}

func TestReferences_PrimitiveBeforeClassInMethodDescriptor(t *testing.T) {
	t.Parallel()

	cf, err := Parse(classfiletest.Build(classfiletest.Class{
		Name: "com/starrocks/qe/Coordinator",
		Methods: []Field{
			{Name: "exec", Descriptor: "(ILorg/apache/thrift/TBase;)V"},
			{Name: "wait", Descriptor: "(JZ)Lcom/starrocks/qe/QueryState;"},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"com/starrocks/qe/QueryState", "java/lang/Object", "org/apache/thrift/TBase"}
	if diff := cmp.Diff(want, cf.References()); diff != "" {
		t.Errorf("references (-want +got):\n%s", diff)
	}
}

func TestDescriptorClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"(ILjava/lang/String;[Lcom/x/A;)V", []string{"java/lang/String", "com/x/A"}},
		{"Ljava/util/List<Lcom/x/B;>;", []string{"java/util/List", "com/x/B"}},
		{"LOGGER", nil},
		{"Lexer.java", nil},
		{"MyLabel;", nil},
		{"(JZLcom/x/A;)Lcom/x/B;", []string{"com/x/A", "com/x/B"}},
		{"(Lcom/x/A;)V^Lcom/x/E;^TX;", []string{"com/x/A", "com/x/E"}},
		{"<T:Ljava/lang/Object;>(TT;)Lcom/x/Box<TT;>.Inner;", []string{"java/lang/Object", "com/x/Box$Inner"}},
		{"<K::Ljava/lang/Comparable<-TK;>;>Lcom/x/Base<*>;Lcom/x/Iface;", []string{"java/lang/Comparable", "com/x/Base", "com/x/Iface"}},
		{"I", nil},
		{"Code", nil},
		{"SourceFile", nil},
		{"(I", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, descriptorClasses(tt.in)); diff != "" {
			t.Errorf("descriptorClasses(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestServiceProviders(t *testing.T) {
	t.Parallel()

	content := []byte("# providers\ncom.mysql.cj.jdbc.Driver\n\n  org.mariadb.jdbc.Driver # fallback\ncom.mysql.cj.jdbc.Driver\n")
	want := []string{"com.mysql.cj.jdbc.Driver", "org.mariadb.jdbc.Driver"}
	if diff := cmp.Diff(want, ServiceProviders(content)); diff != "" {
		t.Errorf("providers (-want +got):\n%s", diff)
	}
}
