// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/masonbuild/mason/cmd/mason"

func main() {
	cmd.Execute()
}
