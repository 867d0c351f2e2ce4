// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"strings"
)

// fingerprintVersion is mixed into every fingerprint so that a change of the
// hashing scheme invalidates recorded values.
const fingerprintVersion = "mason-codegen-v1"

// Fingerprint hashes everything that determines a unit's output: kind,
// package, flags, command template and every input file's path and content.
// Fields are length-prefixed so no two distinct units share a byte stream.
func Fingerprint(u *Unit, defaultCommand string) (string, error) {
	h := sha256.New()
	writeField(h, fingerprintVersion)
	writeField(h, string(u.Kind))
	writeField(h, u.Package)
	writeField(h, strings.Join(u.Flags, "\x00"))
	cmd := u.Command
	if cmd == "" {
		cmd = defaultCommand
	}
	writeField(h, cmd)

	paths := u.InputPaths()
	for i, in := range u.Inputs {
		data, err := os.ReadFile(paths[i])
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", in, err)
		}
		writeField(h, in)
		writeField(h, string(data))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
