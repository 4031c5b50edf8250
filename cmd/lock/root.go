package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/hkv/cmd/util"
	"github.com/ValentinKolb/hkv/lib/lockmgr"
	"github.com/ValentinKolb/hkv/rpc/client"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcLockMgr  lockmgr.ILockManager
	acquireWait time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations on an hkv server",
		Long: `Acquire and release locks held by an hkv server. A lock is released by the server
when its lease (--lock-lease) runs out.`,
		PersistentPreRunE: setupLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the key and the owner ID printed by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().DurationVar(&acquireWait, "wait", 30*time.Second, "How long to wait for the lock (0 = forever)")
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcLockMgr, err = client.NewRPCLockMgr(util.GetClientConfig(), t, s)
	return err
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if acquireWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, acquireWait)
		defer cancel()
	}

	ownerID, err := rpcLockMgr.AcquireLock(ctx, args[0])
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("acquired=false")
			return nil
		}
		return fmt.Errorf("failed to acquire lock: %v", err)
	}

	fmt.Printf("acquired=true, ownerId=%s\n", ownerID)
	return nil
}

// runRelease handles the release lock command
func runRelease(_ *cobra.Command, args []string) error {
	released := rpcLockMgr.ReleaseLock(args[0], args[1])
	fmt.Printf("released=%v\n", released)
	return nil
}
