package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}
