package cmd

import (
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/edermartinez/bienesraices/migrations"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openDBForMigrations()
		if err != nil {
			return err
		}
		defer db.Close()

		return goose.Up(db, ".")
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openDBForMigrations()
		if err != nil {
			return err
		}
		defer db.Close()

		return goose.Down(db, ".")
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the migration status",
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openDBForMigrations()
		if err != nil {
			return err
		}
		defer db.Close()

		return goose.Status(db, ".")
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openDBForMigrations() (*sql.DB, error) {
	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("MYSQL_DSN"))
	if dsn == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	goose.SetBaseFS(migrations.FS)
	if err = goose.SetDialect("mysql"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
