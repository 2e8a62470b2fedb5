package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cheerawab/cherry0324/cherry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestInitCommand(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	t.Setenv("CHERRY_DATABASE_TYPE", "sqlite")
	t.Setenv("CHERRY_DATABASE", dbPath)

	// the first pair doesn't match, so the prompt repeats
	passwords := []string{"testpassword", "typo", "testpassword", "testpassword"}
	passwordIndex := 0

	t.Cleanup(
		func() {
			customPasswordReader = nil
		},
	)
	customPasswordReader = func() ([]byte, error) {
		if passwordIndex >= len(passwords) {
			return nil, fmt.Errorf("no more passwords")
		}
		password := passwords[passwordIndex]
		passwordIndex++
		return []byte(password), nil
	}

	currentOut := rootCmd.OutOrStdout()
	currentErr := rootCmd.OutOrStderr()
	currentIn := rootCmd.InOrStdin()
	t.Cleanup(
		func() {
			rootCmd.SetOut(currentOut)
			rootCmd.SetErr(currentErr)
			rootCmd.SetIn(currentIn)
		},
	)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader("testadmin\n"))

	rootCmd.SetArgs([]string{"init"})
	require.NoError(t, rootCmd.Execute())

	assert.FileExists(t, dbPath)

	output := out.String()
	t.Logf("output: %s", output)
	assert.Contains(t, output, "Admin credentials are not set. Let's set them up.")
	assert.Contains(t, output, "Enter admin username:")
	assert.Contains(t, output, "Passwords do not match. Please try again.")
	assert.Contains(t, output, "Admin credentials set successfully")
	assert.Contains(t, output, "Initialization complete")

	db, err := gorm.Open(sqlite.Open(dbPath))
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)

	var config cherry.RuntimeConfig
	require.NoError(t, db.First(&config).Error)

	assert.Equal(t, "testadmin", config.AdminUsername)
	assert.NotEqual(t, "testpassword", config.AdminPassword)

	valid, err := cherry.VerifyPassword(config.AdminPassword, "testpassword")
	require.NoError(t, err)
	assert.True(t, valid)

	mg := db.Migrator()
	assert.True(t, mg.HasTable(&cherry.RuntimeConfig{}))
	assert.True(t, mg.HasTable(&cherry.InteractionLog{}))
	assert.True(t, mg.HasTable(&cherry.Ticket{}))
	assert.True(t, mg.HasTable(&cherry.StoredDocument{}))

	// a second run leaves the credentials alone
	out.Reset()
	rootCmd.SetArgs([]string{"init"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Admin credentials are already set.")
}
