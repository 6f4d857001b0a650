package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/varaku1012/quantumwala/internal/cli"
)

var rootCmd = &cobra.Command{Use: "quantumwala"}

func main() {
	// Load .env if present; flags still win.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().String("db", os.Getenv("DB_CONN_STR"), "Postgres connection string (file store used when empty)")
	rootCmd.PersistentFlags().String("state-dir", defaultStateDir(), "State directory for the file store")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("QUANTUMWALA_STATE_DIR"); dir != "" {
		return dir
	}
	return ".quantumwala"
}
