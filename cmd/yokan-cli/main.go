package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/yokan-project/yokan/pkg/backend"
	"github.com/yokan-project/yokan/pkg/client"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "yokan-cli",
	Short:   "yokan-cli is a debug and admin client for a yokan provider",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("yokan-cli version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("addr", "127.0.0.1:9123", "address of the yokan provider to connect to")
	rootCmd.PersistentFlags().Uint16("provider-id", 1, "provider id to target")

	rootCmd.AddCommand(putCmd, getCmd, existsCmd, eraseCmd, countCmd, lsCmd, docCmd)

	docCmd.AddCommand(docPutCmd, docGetCmd, docLsCmd)
}

func dial(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	providerID, _ := cmd.Flags().GetUint16("provider-id")
	return client.Dial(addr, providerID)
}

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "store a single key/value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Put(mode.Mode(0), [][]byte{[]byte(args[0])}, [][]byte{[]byte(args[1])})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "fetch the value of a single key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		sizes, payload, err := c.Get(mode.Mode(0), [][]byte{[]byte(args[0])})
		if err != nil {
			return err
		}
		if len(sizes) == 0 || sizes[0] == backend.KeyNotFound {
			return fmt.Errorf("key not found: %s", args[0])
		}
		fmt.Println(string(payload))
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists <key>",
	Short: "report whether a key is present",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		bits, err := c.Exists(mode.Mode(0), [][]byte{[]byte(args[0])})
		if err != nil {
			return err
		}
		fmt.Println(len(bits) > 0 && bits[0]&1 != 0)
		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase <key>",
	Short: "remove a single key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Erase(mode.Mode(0), [][]byte{[]byte(args[0])})
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "print the total number of keys stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		n, err := c.Count()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "list keys, optionally filtered by prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		var prefix []byte
		if len(args) == 1 {
			prefix = []byte(args[0])
		}

		return c.Iter(mode.Mode(0), 0, nil, prefix, true, 64,
			func(index uint64, key, value []byte) status.Status {
				fmt.Println(string(key))
				return status.OK
			})
	},
}

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "manage document collections",
}

var docPutCmd = &cobra.Command{
	Use:   "put <collection> <json-doc>",
	Short: "store a document and print its assigned id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if exists, err := c.CollExists(args[0]); err != nil {
			return err
		} else if !exists {
			if err := c.CollCreate(args[0]); err != nil {
				return err
			}
		}

		ids, err := c.DocStore(mode.Mode(0), args[0], [][]byte{[]byte(args[1])})
		if err != nil {
			return err
		}
		fmt.Println(ids[0])
		return nil
	},
}

var docGetCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "load a document by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[1], err)
		}
		docs, err := c.DocLoad(mode.Mode(0), args[0], []uint64{id})
		if err != nil {
			return err
		}
		fmt.Println(string(docs[0]))
		return nil
	},
}

var docLsCmd = &cobra.Command{
	Use:   "ls <collection>",
	Short: "list documents in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.DocIter(mode.Mode(0), args[0], 0, 0, nil, 64,
			func(index uint64, id uint64, doc []byte) status.Status {
				fmt.Printf("%d\t%s\n", id, doc)
				return status.OK
			})
	},
}
