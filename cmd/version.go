package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.9.1"

func init() {
	cubridCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of the replication daemon",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		})
}
