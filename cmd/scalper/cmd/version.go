package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the scalper CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scalper version %s\n", version)
		fmt.Println("Signal and risk engine for M1/M5 scalping")
		fmt.Println("https://github.com/rustyeddy/scalper")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
