package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// withBridge runs fn against a bridge built from the configuration
func withBridge(cmd *cobra.Command, fn func(b *bridge) error) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	b, err := newBridge(cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(b)
}

func addFileCommands(root *cobra.Command) {
	var appendMode bool
	putCmd := &cobra.Command{
		Use:   "put <uri> [file]",
		Short: "Write stdin or a local file to a uri",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			mode := "w"
			if appendMode {
				mode = "a"
			}

			return withBridge(cmd, func(b *bridge) error {
				stream, err := b.Open(cmd.Context(), args[0], mode, core.OpenReportErrors)
				if err != nil {
					return err
				}
				defer stream.Abort() //nolint:errcheck

				if ok, err := stream.Lock(core.LockExclusive); err != nil || !ok {
					return fmt.Errorf("failed to lock %s: %v", args[0], err)
				}
				if appendMode {
					if err := stream.Reload(); err != nil {
						return err
					}
				}
				if _, err := io.Copy(stream, src); err != nil {
					return err
				}
				return stream.Close()
			})
		},
	}
	putCmd.Flags().BoolVarP(&appendMode, "append", "a", false, "Append instead of replacing")

	catCmd := &cobra.Command{
		Use:   "cat <uri>...",
		Short: "Print the content of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, func(b *bridge) error {
				for _, uri := range args {
					stream, err := b.Open(cmd.Context(), uri, "r", core.OpenReportErrors)
					if err != nil {
						return err
					}
					_, err = io.Copy(cmd.OutOrStdout(), stream)
					stream.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls <uri>",
		Short: "List a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, func(b *bridge) error {
				return listDirectory(cmd, b, args[0])
			})
		},
	}

	statCmd := &cobra.Command{
		Use:   "stat <uri>",
		Short: "Show the synthesized stat record of a uri",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, func(b *bridge) error {
				rec, err := b.URLStat(cmd.Context(), args[0], 0)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "  URI: %s\n", args[0])
				fmt.Fprintf(out, " Type: %s\n", typeName(rec))
				fmt.Fprintf(out, " Size: %d\n", rec.Size)
				fmt.Fprintf(out, " Mode: %04o (%s)\n", rec.Perm(), rec.FileMode())
				fmt.Fprintf(out, "  Uid: %d  Gid: %d\n", rec.UID, rec.GID)
				fmt.Fprintf(out, "Mtime: %s\n", rec.ModTime().Format(time.RFC3339))
				return nil
			})
		},
	}

	var parents bool
	var mkdirMode string
	mkdirCmd := &cobra.Command{
		Use:   "mkdir <uri>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := parseMode(mkdirMode)
			if err != nil {
				return err
			}
			var flags core.DirFlag
			if parents {
				flags |= core.DirRecursive
			}
			return withBridge(cmd, func(b *bridge) error {
				return b.Mkdir(cmd.Context(), args[0], perm, flags)
			})
		},
	}
	mkdirCmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parents")
	mkdirCmd.Flags().StringVarP(&mkdirMode, "mode", "m", "0755", "Octal permissions")

	rmCmd := &cobra.Command{
		Use:   "rm <uri>...",
		Short: "Delete files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, func(b *bridge) error {
				for _, uri := range args {
					if err := b.Unlink(cmd.Context(), uri); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	var recursive bool
	rmdirCmd := &cobra.Command{
		Use:   "rmdir <uri>",
		Short: "Remove a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags core.DirFlag
			if recursive {
				flags |= core.DirRecursive
			}
			return withBridge(cmd, func(b *bridge) error {
				return b.Rmdir(cmd.Context(), args[0], flags)
			})
		},
	}
	rmdirCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Remove the directory with its contents")

	mvCmd := &cobra.Command{
		Use:   "mv <from-uri> <to-uri>",
		Short: "Rename a file or directory, across schemes for files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, func(b *bridge) error {
				return b.Rename(cmd.Context(), args[0], args[1])
			})
		},
	}

	touchCmd := &cobra.Command{
		Use:   "touch <uri>...",
		Short: "Create empty files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, func(b *bridge) error {
				for _, uri := range args {
					if err := b.Touch(cmd.Context(), uri); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	chmodCmd := &cobra.Command{
		Use:   "chmod <mode> <uri>",
		Short: "Change visibility through octal permissions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := parseMode(args[0])
			if err != nil {
				return err
			}
			return withBridge(cmd, func(b *bridge) error {
				return b.Chmod(cmd.Context(), args[1], perm)
			})
		},
	}

	root.AddCommand(putCmd, catCmd, lsCmd, statCmd, mkdirCmd, rmCmd, rmdirCmd, mvCmd, touchCmd, chmodCmd)
}

func listDirectory(cmd *cobra.Command, b *bridge, uri string) error {
	ctx := cmd.Context()

	dir, err := b.OpenDir(ctx, uri)
	if err != nil {
		return err
	}
	defer dir.Close()

	names, err := dir.ReadAll()
	if err != nil {
		return err
	}
	sort.Strings(names)

	scheme, path, err := core.SplitURI(uri)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, name := range names {
		rec, err := b.URLStat(ctx, scheme+"://"+pathutil.Join(path, name), core.StatQuiet)
		if err != nil {
			fmt.Fprintf(tw, "?\t-\t-\t%s\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			rec.FileMode(), rec.Size, rec.ModTime().Format("2006-01-02 15:04"), name)
	}
	return tw.Flush()
}

func parseMode(s string) (os.FileMode, error) {
	perm, err := strconv.ParseUint(s, 8, 32)
	if err != nil || perm > 0o777 {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	return os.FileMode(perm), nil
}

func typeName(rec *core.StatRecord) string {
	if rec.IsDir() {
		return "directory"
	}
	return "regular file"
}
