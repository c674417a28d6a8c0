// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import "github.com/henriheimann/stm32-hal-rfm95/cmd/rfm95-node/cmd"

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
