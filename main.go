package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "carsucart",
	Short: "CarSU campus marketplace API and client tools",
	Long: `carsucart runs the marketplace REST API and ships a small
client for following order status changes from a terminal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchOrdersCmd)
	rootCmd.AddCommand(wishlistCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
