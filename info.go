package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where the club is stored and what it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.club.Info()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Database:       %s\n", a.cfg.DatabasePath)
			fmt.Fprintf(a.out, "Schema version: %d\n", info.SchemaVersion)
			fmt.Fprintf(a.out, "Records:        %s\n", strings.Join(info.Keys, ", "))
			fmt.Fprintf(a.out, "Books:          %d (%d waiting, %d read)\n", info.Books, info.Waiting, info.Read)
			fmt.Fprintf(a.out, "Responses:      %d\n", info.Responses)
			if info.Current == nil {
				fmt.Fprintln(a.out, "Current book:   none")
				return nil
			}
			fmt.Fprintf(a.out, "Current book:   %s (%s)\n", info.Current.Title, responseMarks(info.CurrentResponses))
			if info.CurrentResponses.Complete() {
				fmt.Fprintln(a.out, "Both readers have shared their thoughts; ready to discuss.")
			}
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the --config path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", a.configPath)
			}
			if err := a.cfg.Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
