package cmd

import (
	"fmt"
	"os"

	"github.com/vkolb/viewmesh/cmd/kv"
	"github.com/vkolb/viewmesh/cmd/lock"
	"github.com/vkolb/viewmesh/cmd/serve"
	"github.com/vkolb/viewmesh/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "viewmesh",
		Short: "distributed physical-view dependency engine",
		Long: fmt.Sprintf(`viewmesh (v%s)

A distributed field-granularity dependency tracker for physical data
views, built on RAFT-replicated state for the reservation and lock
subsystems it depends on.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of viewmesh",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("viewmesh v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
