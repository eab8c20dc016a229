// Command dsal is a small utility for poking at a dstore from the shell:
// allocate ids, create and delete objects, and move bytes in and out at
// arbitrary offsets.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dsal "github.com/Seagate/cortx-dsal"

	// Selectable backends.
	_ "github.com/Seagate/cortx-dsal/backend/badgerstore"
	_ "github.com/Seagate/cortx-dsal/backend/filestore"
	_ "github.com/Seagate/cortx-dsal/backend/mem"
	_ "github.com/Seagate/cortx-dsal/backend/s3store"
)

var (
	cfgFile string
	offset  int64
	outFile string
)

func main() {
	root := &cobra.Command{
		Use:           "dsal",
		Short:         "Data store abstraction layer utility",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "dsal.yaml",
		"configuration file")

	root.AddCommand(
		newIDCmd(),
		newCreateCmd(),
		newDeleteCmd(),
		newPutCmd(),
		newGetCmd(),
		newResizeCmd(),
		newBSizeCmd(),
		newBackendsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dsal: %v\n", err)
		os.Exit(1)
	}
}

// initStore reads the configuration file and brings the datastore up.
func initStore() (*dsal.DataStore, error) {
	v := viper.New()
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return dsal.Init(v, 0)
}

func withStore(fn func(ds *dsal.DataStore) error) error {
	ds, err := initStore()
	if err != nil {
		return err
	}
	defer ds.Fini()
	return fn(ds)
}

func parseOID(arg string) (dsal.OID, error) {
	return dsal.ParseOID(arg)
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Allocate a fresh object id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ds *dsal.DataStore) error {
				var oid dsal.OID
				if err := ds.GetNewOID(&oid); err != nil {
					return err
				}
				fmt.Println(oid)
				return nil
			})
		},
	}
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <oid>",
		Short: "Create an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid, err := parseOID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ds *dsal.DataStore) error {
				return ds.ObjCreate(context.Background(), &oid)
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <oid>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid, err := parseOID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ds *dsal.DataStore) error {
				return ds.ObjDelete(context.Background(), &oid)
			})
		},
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <oid> <file>",
		Short: "Write a file's contents into an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid, err := parseOID(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("%s is empty", args[1])
			}
			return withStore(func(ds *dsal.DataStore) error {
				ctx := context.Background()
				bs, err := ds.GetBSize(&oid)
				if err != nil {
					return err
				}
				obj, err := ds.ObjOpen(ctx, &oid)
				if err != nil {
					return err
				}
				defer obj.Close()
				return obj.PWrite(ctx, offset, bs, data)
			})
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset to write at")
	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <oid> <count>",
		Short: "Read bytes from an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid, err := parseOID(args[0])
			if err != nil {
				return err
			}
			count, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || count <= 0 {
				return fmt.Errorf("bad count %q", args[1])
			}
			return withStore(func(ds *dsal.DataStore) error {
				ctx := context.Background()
				bs, err := ds.GetBSize(&oid)
				if err != nil {
					return err
				}
				obj, err := ds.ObjOpen(ctx, &oid)
				if err != nil {
					return err
				}
				defer obj.Close()

				data := make([]byte, count)
				if err := obj.PRead(ctx, offset, bs, data); err != nil {
					return err
				}

				out := os.Stdout
				if outFile != "" {
					f, err := os.Create(outFile)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				_, err = out.Write(data)
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset to read from")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write output to file instead of stdout")
	return cmd
}

func newResizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize <oid> <old-size> <new-size>",
		Short: "Resize an object (shrink zero-fills the tail)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid, err := parseOID(args[0])
			if err != nil {
				return err
			}
			oldSize, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("bad old size %q", args[1])
			}
			newSize, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("bad new size %q", args[2])
			}
			return withStore(func(ds *dsal.DataStore) error {
				ctx := context.Background()
				obj, err := ds.ObjOpen(ctx, &oid)
				if err != nil {
					return err
				}
				defer obj.Close()
				return obj.Resize(ctx, oldSize, newSize)
			})
		},
	}
}

func newBSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bsize <oid>",
		Short: "Print the backend block size for an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid, err := parseOID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ds *dsal.DataStore) error {
				bs, err := ds.GetBSize(&oid)
				if err != nil {
					return err
				}
				fmt.Println(bs)
				return nil
			})
		},
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List compiled-in backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range dsal.Backends() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
