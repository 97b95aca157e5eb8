package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotelling/database"
	"hotelling/hotelling/transport/relay"
	"hotelling/middlewares"
	"hotelling/migrations"
	"hotelling/models"
	"hotelling/utils"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "hotelling",
	Short:         "Session server for the Hotelling duopoly experiment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var tokenCmd = &cobra.Command{
	Use:   "token [operator]",
	Short: "Print an operator token signed with the configured secret",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := database.LoadConfig(configPath)
		if err != nil {
			return err
		}
		name := config.Operator.Name
		if len(args) == 1 {
			name = args[0]
		}
		token, expiresAt, err := middlewares.GenerateToken(config.Operator, name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the snapshot backup table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLogger(func(config models.Config, logger *zap.Logger) error {
			db, err := database.InitPostgreSQL(config.Database, logger)
			if err != nil {
				return err
			}
			return migrations.AutoMigrateDB(db, logger)
		})
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Maintain the relay store",
}

var eraseCmd = &cobra.Command{
	Use:   "erase table...",
	Short: "Erase relay tables (request, response, waiting_list, participants, messages, missing_players)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLogger(func(config models.Config, logger *zap.Logger) error {
			rdb, err := database.InitRedis(config.Relay, logger)
			if err != nil {
				return err
			}
			defer rdb.Close()

			adapter := relay.New(rdb, relayConfig(config), logger)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := adapter.EraseTables(ctx, args...); err != nil {
				return err
			}
			logger.Info("tables erased", zap.Strings("tables", args))
			return nil
		})
	},
}

func withLogger(fn func(models.Config, *zap.Logger) error) error {
	logger, err := utils.InitLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	config, err := database.LoadConfig(configPath)
	if err != nil {
		logger.Error("設定ファイルの読み込みに失敗しました", zap.Error(err))
		return err
	}
	return fn(config, logger)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON configuration file")
	tablesCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(serveCmd, tokenCmd, migrateCmd, tablesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
