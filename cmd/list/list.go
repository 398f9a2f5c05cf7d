package list

import (
	"github.com/spf13/cobra"
)

// ListCmd groups one-shot device queries.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List device resources",
}

func init() {
	ListCmd.AddCommand(interfacesCmd)
}
