package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/observability"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "dusk",
	Short:         "Dusk drives real browsers for end-to-end tests.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Initialize configuration loading (Viper)
		if err := initializeConfig(viper.GetViper()); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// 2. Unmarshal the configuration
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "dusk"})
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		// 3. Validate the configuration
		if err := cfg.Validate(); err != nil {
			observability.InitializeLogger(cfg.Logger)
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// 4. Store the configuration globally
		config.Set(&cfg)

		// 5. Initialize the logger
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting dusk", zap.String("version", Version), zap.String("driver", cfg.Driver.Name))
		return nil
	},
}

// Execute runs the root command. ctx is cancelled on interrupt by main.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Interrupts are not failures worth logging.
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("driver", "", "browser driver: chromedp, selenium or htmldom")
	rootCmd.PersistentFlags().String("base-url", "", "base URL relative paths are resolved against")
	rootCmd.PersistentFlags().Bool("headless", true, "run the browser without a window")
	_ = viper.BindPFlag("driver.name", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("browser.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("driver.headless", rootCmd.PersistentFlags().Lookup("headless"))

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newChromeDriverCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper) error {
	// Set default values so the app can run with a minimal config.
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// DUSK_DRIVER_NAME overrides driver.name, and so on.
	v.SetEnvPrefix("DUSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a broken one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
