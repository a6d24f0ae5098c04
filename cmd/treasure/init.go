package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/trashtotreasure/treasure/internal/auth"
	"github.com/trashtotreasure/treasure/internal/store"
)

var (
	seedName  string
	seedEmail string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema and optionally a first verified user",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&seedEmail, "email", "", "email of a verified user to create")
	initCmd.Flags().StringVar(&seedName, "name", "Admin", "name of the created user")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	database, err := openDatabase(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database ready: %s\n", cfg.Database.Path)
	if seedEmail == "" {
		return nil
	}

	password, err := createSeedUser(ctx, database, seedName, seedEmail)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Account created:")
	fmt.Fprintf(out, "  Email:    %s\n", store.NormalizeEmail(seedEmail))
	fmt.Fprintf(out, "  Password: %s\n", password)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Save this password, it cannot be recovered.")
	return nil
}

// createSeedUser creates a verified user with a generated password.
func createSeedUser(ctx context.Context, database *sql.DB, name, email string) (string, error) {
	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	user, err := store.CreateUser(ctx, database, name, email, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return "", fmt.Errorf("user %s already exists", store.NormalizeEmail(email))
	}
	if err != nil {
		return "", err
	}
	if err := store.SetVerified(ctx, database, user.ID); err != nil {
		return "", err
	}
	return password, nil
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
