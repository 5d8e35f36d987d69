// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/kegworks/keg/cmd/keg"

func main() {
	cmd.Execute()
}
