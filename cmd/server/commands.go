package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"workspace-agent-backend/config"
	"workspace-agent-backend/dao"
	"workspace-agent-backend/middleware"

	"github.com/spf13/cobra"
)

func buildServeCmd(configPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := dao.InitDB(cfg.MySQL); err != nil {
				return err
			}
			if err := dao.AutoMigrate(dao.DB); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration completed")
			return nil
		},
	}
}

func buildSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a random JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := generateJWTSecret()
			if err != nil {
				return fmt.Errorf("error generating secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

func buildTokenCmd(configPath *string) *cobra.Command {
	var (
		userID      string
		workspaceID string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user in a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.TTL
			}
			token, err := middleware.GenerateToken(userID, workspaceID, cfg.JWT.SecretKey, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: jwt.ttl)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func generateJWTSecret() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}
