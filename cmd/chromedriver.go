package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tebeka/selenium"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/observability"
)

func newChromeDriverCmd() *cobra.Command {
	var (
		path string
		port int
	)

	chromeDriverCmd := &cobra.Command{
		Use:   "chromedriver",
		Short: "Run a ChromeDriver service until interrupted",
		Long: `Starts ChromeDriver so that the selenium driver (or any WebDriver client) can
connect to http://127.0.0.1:<port>/wd/hub. Stop it with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger().Named("chromedriver")
			cfg := config.Get().Driver.Selenium
			if path == "" {
				path = cfg.ChromeDriverPath
			}
			if port == 0 {
				port = cfg.Port
			}
			if path == "" {
				return fmt.Errorf("no chromedriver binary: pass --path or set driver.selenium.chromedriver_path")
			}

			service, err := selenium.NewChromeDriverService(path, port)
			if err != nil {
				return fmt.Errorf("failed to start chromedriver: %w", err)
			}
			logger.Info("ChromeDriver running.", zap.String("path", path), zap.Int("port", port))
			fmt.Fprintf(cmd.OutOrStdout(), "ChromeDriver listening on http://127.0.0.1:%d/wd/hub\n", port)

			<-cmd.Context().Done()

			logger.Info("Stopping ChromeDriver.")
			if err := service.Stop(); err != nil {
				return fmt.Errorf("failed to stop chromedriver: %w", err)
			}
			return nil
		},
	}

	chromeDriverCmd.Flags().StringVar(&path, "path", "", "chromedriver binary (default driver.selenium.chromedriver_path)")
	chromeDriverCmd.Flags().IntVar(&port, "port", 0, "listen port (default driver.selenium.port)")
	return chromeDriverCmd
}
