// Package main is the operator CLI: schema migration, user provisioning
// and conversation archival.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalize-ai/agent-chat/internal/config"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "chatadmin",
		Short:         "Administer the chat database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	})

	createUser := &cobra.Command{
		Use:   "create-user <email>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreateUser,
	}
	createUser.Flags().StringP("password", "p", "", "password for the new account (required)")
	_ = createUser.MarkFlagRequired("password")
	rootCmd.AddCommand(createUser)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "archive <conversation-id>",
		Short: "Archive a conversation regardless of owner",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchive,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore loads configuration and opens the database.
func openStore() (*store.Store, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, fmt.Errorf("logger init: %w", err)
	}
	st, err := store.Open(store.Config{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, log, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	st, log, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctxOf(cmd)); err != nil {
		return err
	}
	log.Info("schema is up to date")
	return nil
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	password, _ := cmd.Flags().GetString("password")

	st, log, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	accounts := service.NewAccountService(st, nil, bcrypt.DefaultCost, log)
	user, err := accounts.CreateUser(ctxOf(cmd), args[0], password)
	if err != nil {
		return err
	}
	log.Info("user created", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	fmt.Fprintln(cmd.OutOrStdout(), user.ID)
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid conversation id %q", args[0])
	}

	st, log, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := ctxOf(cmd)
	conv, ok, err := st.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %d not found", id)
	}
	if err := st.ArchiveConversation(ctx, conv.ID); err != nil {
		return err
	}
	log.Info("conversation archived", zap.Int64("conversation_id", conv.ID), zap.Int64("user_id", conv.UserID))
	return nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
