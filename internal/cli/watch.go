package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/tui"
)

var watchRefresh time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of all workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		return tui.Run(reg, watchRefresh)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchRefresh, "refresh", time.Second, "dashboard refresh interval")
	rootCmd.AddCommand(watchCmd)
}
