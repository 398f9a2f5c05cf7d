package show

import (
	"github.com/spf13/cobra"
)

// ShowCmd displays local information.
var ShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show local information",
}

func init() {
	ShowCmd.AddCommand(configCmd)
}
