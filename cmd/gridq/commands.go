package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/franksops/gridq/config"
	"github.com/franksops/gridq/store"
)

// localPath makes a local argument absolute, in slash form.
func localPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(abs), nil
}

func newPutCmd(opts *globalOptions) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "put <local> <remote>",
		Short: "Queue an upload of a local file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := localPath(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				rec, err := a.mgr.EnqueuePut(cmd.Context(), local, args[1], resource, a.cfg.AccountDescriptor())
				return printQueued(cmd.OutOrStdout(), rec, err)
			})
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Target resource (default: account default resource)")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "get <remote> <local>",
		Short: "Queue a download of a remote file or collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := localPath(args[1])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				rec, err := a.mgr.EnqueueGet(cmd.Context(), args[0], local, resource, a.cfg.AccountDescriptor())
				return printQueued(cmd.OutOrStdout(), rec, err)
			})
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Source resource (default: account default resource)")
	return cmd
}

func newReplicateCmd(opts *globalOptions) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "replicate <remote>",
		Short: "Queue a replication of remote data onto another resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				rec, err := a.mgr.EnqueueReplicate(cmd.Context(), args[0], resource, a.cfg.AccountDescriptor())
				return printQueued(cmd.OutOrStdout(), rec, err)
			})
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Resource to replicate onto")
	cmd.MarkFlagRequired("resource")
	return cmd
}

func newCopyCmd(opts *globalOptions) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "copy <source> <target>",
		Short: "Queue a remote to remote copy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				rec, err := a.mgr.EnqueueCopy(cmd.Context(), args[0], args[1], resource, a.cfg.AccountDescriptor())
				return printQueued(cmd.OutOrStdout(), rec, err)
			})
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Target resource (default: account default resource)")
	return cmd
}

func newQueueCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List all transfers, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				recs, err := a.mgr.CurrentQueue()
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent transfers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				recs, err := a.mgr.RecentN(n)
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 20, "Number of transfers to show")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transfer in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				rec, err := a.mgr.FindByID(args[0])
				if err != nil {
					return err
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func newRequeueCmd(opts *globalOptions) *cobra.Command {
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "requeue <id>",
		Short: "Put a finished transfer back in the queue",
		Long: `Put a COMPLETE or ERROR transfer back in the queue. By default it resumes
after the last file that completed; --from-start transfers everything again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				rec, err := a.mgr.Requeue(cmd.Context(), args[0], !fromStart)
				return printQueued(cmd.OutOrStdout(), rec, err)
			})
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Discard the checkpoint")
	return cmd
}

func newPurgeCmd(opts *globalOptions) *cobra.Command {
	var withErrors bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete completed transfers from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			states := []store.State{store.StateComplete}
			if withErrors {
				states = append(states, store.StateError)
			}
			return withApp(opts, func(a *app) error {
				n, err := a.mgr.Purge(cmd.Context(), states...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d transfers\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withErrors, "errors", false, "Also delete failed transfers")
	return cmd
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Account.Password != "" {
				cfg.Account.Password = "********"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if err := config.SaveToFile(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	})

	return cmd
}

func withApp(opts *globalOptions, fn func(a *app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printQueued(w io.Writer, rec *store.Record, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s queued: %s -> %s\n", rec.Kind, rec.ID, rec.Source(), rec.Target())
	return nil
}

func printRecords(w io.Writer, recs []*store.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No transfers")
		return
	}
	fmt.Fprintf(w, "%-36s  %-9s  %-10s  %-7s  %s\n", "ID", "KIND", "STATE", "STATUS", "TRANSFER")
	for _, rec := range recs {
		fmt.Fprintf(w, "%-36s  %-9s  %-10s  %-7s  %s -> %s\n",
			rec.ID, rec.Kind, rec.State, rec.Status, rec.Source(), rec.Target())
	}
}

func printRecord(w io.Writer, rec *store.Record) {
	fmt.Fprintf(w, "ID:          %s\n", rec.ID)
	fmt.Fprintf(w, "Kind:        %s\n", rec.Kind)
	fmt.Fprintf(w, "State:       %s (%s)\n", rec.State, rec.Status)
	fmt.Fprintf(w, "Source:      %s\n", rec.Source())
	fmt.Fprintf(w, "Target:      %s\n", rec.Target())
	if rec.Resource != "" {
		fmt.Fprintf(w, "Resource:    %s\n", rec.Resource)
	}
	fmt.Fprintf(w, "Account:     %s\n", rec.Account)
	fmt.Fprintf(w, "Created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
	if !rec.TransferStart.IsZero() {
		fmt.Fprintf(w, "Started:     %s\n", rec.TransferStart.Format(time.RFC3339))
	}
	if !rec.TransferEnd.IsZero() {
		fmt.Fprintf(w, "Finished:    %s\n", rec.TransferEnd.Format(time.RFC3339))
	}
	if rec.LastSuccessfulPath != "" {
		fmt.Fprintf(w, "Checkpoint:  %s\n", rec.LastSuccessfulPath)
	}
	if rec.ItemErrors > 0 {
		fmt.Fprintf(w, "Item errors: %d\n", rec.ItemErrors)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:       %s\n", rec.ErrorMessage)
	}
}
