package kv

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/ValentinKolb/hkv/cmd/util"
	"github.com/spf13/cobra"
)

var (
	setTTL    time.Duration
	pullOnce  bool
	queryKey  string
	queryProp string
)

// output writes a result as JSON to stdout
func output(v any) error {
	return util.PrintJSON(os.Stdout, v)
}

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value at a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := kvStore.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(v)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value at a key",
		Long:  "Sets the value at a key. With --ttl the whole row expires after the given duration (requires a backend with TTL support).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stored any
			var err error
			if setTTL > 0 {
				stored, err = kvStore.SetE(cmd.Context(), args[0], util.ParseValue(args[1]), setTTL)
			} else {
				stored, err = kvStore.Set(cmd.Context(), args[0], util.ParseValue(args[1]))
			}
			if err != nil {
				return err
			}
			return output(stored)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes the value at a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvStore.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%d\n", n)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key holds a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := kvStore.Has(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], ok)
			return nil
		},
	}
	allCmd = &cobra.Command{
		Use:   "all",
		Short: "Lists every row of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := kvStore.All(cmd.Context())
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes every row of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := kvStore.DeleteAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%d\n", n)
			return nil
		},
	}

	// --------------------------------------------------------------------------
	// Arrays
	// --------------------------------------------------------------------------

	pushCmd = &cobra.Command{
		Use:   "push [key] [value...]",
		Short: "Appends values to the array at a key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				values = append(values, util.ParseValue(a))
			}
			arr, err := kvStore.Push(cmd.Context(), args[0], values...)
			if err != nil {
				return err
			}
			return output(arr)
		},
	}
	unshiftCmd = &cobra.Command{
		Use:   "unshift [key] [value]",
		Short: "Prepends a value to the array at a key (an array value is spliced in)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arr, err := kvStore.Unshift(cmd.Context(), args[0], util.ParseValue(args[1]))
			if err != nil {
				return err
			}
			return output(arr)
		},
	}
	popCmd = &cobra.Command{
		Use:   "pop [key]",
		Short: "Removes and prints the last element of the array at a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := kvStore.Pop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(v)
		},
	}
	shiftCmd = &cobra.Command{
		Use:   "shift [key]",
		Short: "Removes and prints the first element of the array at a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := kvStore.Shift(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(v)
		},
	}
	pullCmd = &cobra.Command{
		Use:   "pull [key] [value]",
		Short: "Removes matching elements from the array at a key",
		Long:  "Removes the elements equal to value from the array at key. A JSON array value is a list of candidates.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arr, err := kvStore.Pull(cmd.Context(), args[0], util.ParseValue(args[1]), pullOnce)
			if err != nil {
				return err
			}
			return output(arr)
		},
	}

	// --------------------------------------------------------------------------
	// Numbers
	// --------------------------------------------------------------------------

	addCmd = &cobra.Command{
		Use:   "add [key] [n]",
		Short: "Adds n to the number at a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvStore.Add(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return output(n)
		},
	}
	subCmd = &cobra.Command{
		Use:   "sub [key] [n]",
		Short: "Subtracts n from the number at a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvStore.Sub(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return output(n)
		},
	}

	// --------------------------------------------------------------------------
	// Queries
	// --------------------------------------------------------------------------

	searchCmd = &cobra.Command{
		Use:   "search [term]",
		Short: "Lists rows whose value (or --property) contains term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := kvStore.Search(cmd.Context(), util.ParseValue(args[0]), queryProp)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	inCmd = &cobra.Command{
		Use:   "in [term]",
		Short: "Lists rows whose value (or --property) contains term, restricted to --key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := kvStore.In(cmd.Context(), util.ParseValue(args[0]), queryProp, queryKey)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	betweenCmd = &cobra.Command{
		Use:   "between [min] [max]",
		Short: "Lists rows whose numeric value (or --property) lies in [min, max]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lo, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("min must be a number: %w", err)
			}
			hi, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("max must be a number: %w", err)
			}
			rows, err := kvStore.Between(cmd.Context(), lo, hi, queryProp, queryKey)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	startsWithCmd = &cobra.Command{
		Use:   "starts-with [prefix]",
		Short: "Lists rows whose ID starts with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := kvStore.StartsWith(cmd.Context(), args[0], queryKey)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	endsWithCmd = &cobra.Command{
		Use:   "ends-with [suffix]",
		Short: "Lists rows whose ID ends with suffix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := kvStore.EndsWith(cmd.Context(), args[0], queryKey)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	regexCmd = &cobra.Command{
		Use:   "regex [pattern]",
		Short: "Lists rows whose string value (or --property) matches pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := regexp.Compile(args[0])
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			rows, err := kvStore.Regex(cmd.Context(), re, queryProp, queryKey)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
	compareCmd = &cobra.Command{
		Use:   "compare [property] [operator] [value]",
		Short: "Lists rows whose property compares to value (==, ===, !=, !==, >, >=, <, <=)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := kvStore.Compare(cmd.Context(), args[0], args[1], util.ParseValue(args[2]), queryKey)
			if err != nil {
				return err
			}
			return output(rows)
		},
	}
)

func init() {
	setCmd.Flags().DurationVar(&setTTL, "ttl", 0, "Row expires after this duration (e.g. 30s, 5m)")
	pullCmd.Flags().BoolVar(&pullOnce, "once", false, "Only remove the first match")

	for _, c := range []*cobra.Command{inCmd, betweenCmd, startsWithCmd, endsWithCmd, regexCmd, compareCmd} {
		c.Flags().StringVar(&queryKey, "key", "", "Only consider the value at this key")
	}
	for _, c := range []*cobra.Command{searchCmd, inCmd, betweenCmd, regexCmd} {
		c.Flags().StringVar(&queryProp, "property", "", "Match this property of object values")
	}
}
