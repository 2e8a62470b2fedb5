package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"strings"
	"syscall"

	"github.com/cheerawab/cherry0324/cherry"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"
)

// passwordReader is a function type for reading passwords. It's really only
// here to make testing easier.
type passwordReader func() ([]byte, error)

var customPasswordReader passwordReader

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and set admin credentials",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.DatabaseType == "" {
			log.Fatalf(
				"Environment variable %s_DATABASE_TYPE not set (must be one of: sqlite, postgres)",
				cherry.DefaultEnvPrefix,
			)
		}
		if cfg.Database == "" {
			log.Fatalf(
				"Environment variable %s_DATABASE not set (must be a valid "+
					"database connection string or sqlite file path)",
				cherry.DefaultEnvPrefix,
			)
		}
		db, err := cherry.CreateDB(ctx, cfg.DatabaseType, cfg.Database)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}
		defer func() {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
		}()

		var runtimeConfig cherry.RuntimeConfig
		rv := db.Last(&runtimeConfig)
		if rv.Error != nil {
			if !errors.Is(rv.Error, gorm.ErrRecordNotFound) {
				log.Fatalf("Error retrieving runtime config: %s", rv.Error.Error())
			}
			runtimeConfig = cherry.DefaultRuntimeConfig()
			if err = db.Create(&runtimeConfig).Error; err != nil {
				log.Fatalf("Error creating runtime config: %v", err)
			}
		}

		out := cmd.OutOrStdout()
		if runtimeConfig.AdminUsername != "" && runtimeConfig.AdminPassword != "" {
			fmt.Fprintln(out, "Admin credentials are already set.")
			fmt.Fprintln(out, "Initialization complete. Start the bot with the 'run' subcommand.")
			return
		}

		fmt.Fprintln(out, "Admin credentials are not set. Let's set them up.")
		reader := bufio.NewReader(cmd.InOrStdin())

		var username string
		for username == "" {
			fmt.Fprint(out, "Enter admin username: ")
			line, readErr := reader.ReadString('\n')
			username = strings.TrimSpace(line)
			if readErr != nil && username == "" {
				log.Fatalf("Error reading username: %v", readErr)
			}
		}

		if customPasswordReader == nil {
			customPasswordReader = func() ([]byte, error) {
				return term.ReadPassword(int(syscall.Stdin))
			}
		}

		var password string
		for {
			fmt.Fprint(out, "Enter admin password: ")
			passwordBytes, readErr := customPasswordReader()
			fmt.Fprintln(out)
			if readErr != nil {
				log.Fatalf("Error reading password: %v", readErr)
			}
			password = string(passwordBytes)

			fmt.Fprint(out, "Confirm admin password: ")
			confirmBytes, readErr := customPasswordReader()
			fmt.Fprintln(out)
			if readErr != nil {
				log.Fatalf("Error reading password: %v", readErr)
			}

			if password == "" {
				fmt.Fprintln(out, "Password can't be empty. Please try again.")
				continue
			}
			if password == string(confirmBytes) {
				break
			}
			fmt.Fprintln(out, "Passwords do not match. Please try again.")
		}

		hashedPassword, err := cherry.HashPassword(password)
		if err != nil {
			log.Fatalf("Error hashing password: %v", err)
		}

		if err = db.Model(&runtimeConfig).Updates(
			map[string]any{
				"admin_username": username,
				"admin_password": hashedPassword,
			},
		).Error; err != nil {
			log.Fatalf("Error updating admin credentials: %v", err)
		}

		fmt.Fprintln(out, "Admin credentials set successfully.")
		fmt.Fprintln(out, "Initialization complete. Start the bot with the 'run' subcommand.")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
