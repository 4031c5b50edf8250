package kv

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/hkv/cmd/util"
	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/store"
	"github.com/ValentinKolb/hkv/rpc/client"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	kvStore  store.IStore
	kvDriver db.Driver

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Perform key-value operations on a table",
		Long: `Perform key-value operations on a table of the configured backend.
Keys are dotted paths (user.profile.age) unless --normal-keys is set.
Values are parsed as JSON and taken as plain strings otherwise.`,
		PersistentPreRunE:  setupKVStore,
		PersistentPostRunE: closeKVStore,
	}
)

func init() {
	util.SetupDriverFlags(KeyValueCommands)
	util.SetupRPCClientFlags(KeyValueCommands)

	key := "table"
	KeyValueCommands.PersistentFlags().String(key, "json", util.WrapString("The table to operate on"))

	key = "normal-keys"
	KeyValueCommands.PersistentFlags().Bool(key, false, util.WrapString("Treat keys as plain row IDs (dots are not path separators)"))

	key = "locking"
	KeyValueCommands.PersistentFlags().String(key, "none", util.WrapString("Serialize mutations of a row: none, local or remote (locks held by the server, for --driver remote)"))

	// Add subcommands
	KeyValueCommands.AddCommand(
		getCmd, setCmd, delCmd, hasCmd, allCmd, clearCmd,
		pushCmd, popCmd, shiftCmd, unshiftCmd, pullCmd,
		addCmd, subCmd,
		searchCmd, inCmd, betweenCmd, startsWithCmd, endsWithCmd, regexCmd, compareCmd,
		perfTestCmd,
	)
}

// setupKVStore connects the driver and creates the store
func setupKVStore(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	var opts []store.Option
	if viper.GetBool("normal-keys") {
		opts = append(opts, store.WithNormalKeys())
	}

	switch mode := viper.GetString("locking"); mode {
	case "none", "":
	case "local":
		opts = append(opts, store.WithKeyLocking())
	case "remote":
		s, err := util.GetSerializer()
		if err != nil {
			return err
		}
		t, err := util.GetClientTransport()
		if err != nil {
			return err
		}
		locks, err := client.NewRPCLockMgr(util.GetClientConfig(), t, s)
		if err != nil {
			return err
		}
		opts = append(opts, store.WithLockManager(locks))
	default:
		return fmt.Errorf("invalid locking mode %s (expected none, local or remote)", mode)
	}

	d, err := util.GetDriver()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.Connect(ctx); err != nil {
		return err
	}
	kvDriver = d

	if kvStore, err = store.New(d, viper.GetString("table"), opts...); err != nil {
		return err
	}
	return kvStore.Init(ctx)
}

// closeKVStore disconnects the driver
func closeKVStore(cmd *cobra.Command, _ []string) error {
	if kvDriver == nil {
		return nil
	}
	return kvDriver.Disconnect(context.Background())
}
