// Package main contains attrdbctl, a thin cobra-based CLI front end over
// attrdb: migrate/apply-schema a database file and export/import CSV.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"attrdb"
	"attrdb/csvio"
)

type migrateFlags struct {
	db  string
	dir string
}

type applySchemaFlags struct {
	db   string
	file string
}

type csvFlags struct {
	db       string
	group    string
	optsFile string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "attrdbctl",
		Short: "Inspect and migrate an attrdb database",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(applySchemaCmd())
	rootCmd.AddCommand(describeCmd())
	rootCmd.AddCommand(exportCSVCmd())
	rootCmd.AddCommand(importCSVCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	flags := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply every pending migration in a migrations directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			d, err := attrdb.FromMigrations(ctx, flags.db, flags.dir)
			if err != nil {
				return err
			}
			defer d.Close()
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "path to the SQLite database file")
	cmd.Flags().StringVar(&flags.dir, "dir", "migrations", "migrations directory")
	cmd.MarkFlagRequired("db")
	return cmd
}

func applySchemaCmd() *cobra.Command {
	flags := &applySchemaFlags{}
	cmd := &cobra.Command{
		Use:   "apply-schema",
		Short: "Bootstrap a database from a single SQL schema file",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			d, err := attrdb.FromSchema(ctx, flags.db, flags.file)
			if err != nil {
				return err
			}
			defer d.Close()
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "path to the SQLite database file")
	cmd.Flags().StringVar(&flags.file, "file", "", "schema .sql file")
	cmd.MarkFlagRequired("db")
	cmd.MarkFlagRequired("file")
	return cmd
}

func describeCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the collections and attribute groups of a database",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			d, err := attrdb.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer d.Close()
			for _, line := range d.Schema().Describe() {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database file")
	cmd.MarkFlagRequired("db")
	return cmd
}

func exportCSVCmd() *cobra.Command {
	flags := &csvFlags{}
	cmd := &cobra.Command{
		Use:   "export-csv <collection> <path>",
		Short: "Export a collection or attribute group to a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			d, err := attrdb.Open(ctx, flags.db)
			if err != nil {
				return err
			}
			defer d.Close()

			opts, err := loadOpts(flags.optsFile)
			if err != nil {
				return err
			}
			return d.ExportCSV(ctx, args[0], flags.group, args[1], opts)
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "path to the SQLite database file")
	cmd.Flags().StringVar(&flags.group, "group", "", "attribute group name (omit for the collection's scalars)")
	cmd.Flags().StringVar(&flags.optsFile, "options", "", "TOML file with date_time_format/enum_labels")
	cmd.MarkFlagRequired("db")
	return cmd
}

func importCSVCmd() *cobra.Command {
	flags := &csvFlags{}
	cmd := &cobra.Command{
		Use:   "import-csv <collection> <path>",
		Short: "Import a CSV file into a collection or attribute group",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			d, err := attrdb.Open(ctx, flags.db)
			if err != nil {
				return err
			}
			defer d.Close()

			opts, err := loadOpts(flags.optsFile)
			if err != nil {
				return err
			}
			return d.ImportCSV(ctx, args[0], flags.group, args[1], opts)
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "path to the SQLite database file")
	cmd.Flags().StringVar(&flags.group, "group", "", "attribute group name (omit for the collection's scalars)")
	cmd.Flags().StringVar(&flags.optsFile, "options", "", "TOML file with date_time_format/enum_labels")
	cmd.MarkFlagRequired("db")
	return cmd
}

func loadOpts(path string) (*csvio.Options, error) {
	if path == "" {
		return &csvio.Options{}, nil
	}
	return csvio.LoadOptionsFile(path)
}
