// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rfm95-node version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
