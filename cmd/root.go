package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/hkv/cmd/kv"
	"github.com/ValentinKolb/hkv/cmd/lock"
	"github.com/ValentinKolb/hkv/cmd/serve"
	"github.com/ValentinKolb/hkv/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hkv",
		Short: "JSON key-value store over pluggable backends",
		Long: fmt.Sprintf(`hkv (v%s)

A key-value store for JSON values with dotted key paths, array and number
helpers and in-memory queries. Values live in a pluggable backend (memory,
file, sqlite, postgres, mysql, mongo) or on an hkv server (remote).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hkv v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use for rpc (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use for rpc (http, tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
