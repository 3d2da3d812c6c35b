package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/database"
)

func newMigrateCommand() *cobra.Command {
	var down, status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			switch {
			case status:
				return migrationStatus(cmd.OutOrStdout(), cfg)
			case down:
				return revertMigration(cfg)
			default:
				return runMigrations(cfg)
			}
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Revert the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "Print the schema version and pending migrations")
	return cmd
}

func runMigrations(cfg *config.Config) error {
	log.Println("Running database migrations...")

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	log.Printf("Migrations completed successfully (schema %s)", version)
	return nil
}

func revertMigration(cfg *config.Config) error {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	version, err := db.Rollback()
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	if version == "" {
		log.Println("No migrations to revert")
		return nil
	}
	log.Printf("Reverted migration %s", version)
	return nil
}

func migrationStatus(out io.Writer, cfg *config.Config) error {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	pending, err := db.Pending()
	if err != nil {
		return err
	}
	if version == "" {
		version = "none"
	}
	fmt.Fprintf(out, "schema: %s\n", version)
	for _, v := range pending {
		fmt.Fprintf(out, "pending: %s\n", v)
	}
	return nil
}

func newHashPasswordCommand() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}

func newAddUserCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-user <username>",
		Short: "Add a panel user or reset its password; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return fmt.Errorf("username is required")
			}

			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}

			if f, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(f) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", username)
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}

			if err := config.NewStore(cfg, path).SetUser(username, hash); err != nil {
				return fmt.Errorf("failed to save user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s saved to %s\n", username, path)
			return nil
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
