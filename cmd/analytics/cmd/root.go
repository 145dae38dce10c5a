package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-compliance-analytics/cmd/analytics/config"
	"golang-compliance-analytics/pkg/logger"
)

const envPrefix = "ANALYTICS"

var (
	cfgFile   string
	verbose   bool
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Compliance analytics pipeline",
	Long: `Analytics turns bank customer, product and transaction extracts into
per-transaction and per-customer feature datasets for compliance monitoring,
with optional anomaly scores and monthly time-series deviations.

Stages run by name and hand over through artifacts in the work directory:
raw, intermediate, primary, feature_engineering, anomaly_detection,
time_series, or all of them in order.

Examples:
  analytics run all --customers clientes.csv --products productos.csv --transactions transacciones.csv
  analytics run feature_engineering --work-dir /data/work --format json
  analytics run all --config analytics.yaml --summary-format json`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	return NewCLIErrorHandler().HandleError(err)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./analytics.yaml, then $HOME/.analytics.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	bindRootFlags()
}

// bindRootFlags binds the global flags to viper
func bindRootFlags() {
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	file := cfgFile
	if file == "" {
		file = findConfigFile()
	}
	if file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	setupLogger()
}

// findConfigFile returns the first default config file that exists
func findConfigFile() string {
	candidates := []string{"analytics.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".analytics.yaml"))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// setupLogger installs the global logger from --verbose and --log-format
func setupLogger() {
	format := logger.Format(strings.ToLower(viper.GetString("log.format")))

	var logConfig *logger.Config
	switch {
	case viper.GetBool("verbose"):
		logConfig = logger.DebugConfig()
	case format == logger.JSONFormat:
		logConfig = logger.ProductionConfig()
	default:
		logConfig = logger.DefaultConfig()
	}
	if format != "" {
		logConfig.Format = format
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid logging configuration: %s\n", err)
		os.Exit(4)
	}
	logger.SetGlobalLogger(log)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
