package cdp

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/dusk/internal/config"
)

// allocatorOptions configures the flags for the browser executable.
func allocatorOptions(cfg config.DriverConfig) []chromedp.ExecAllocatorOption {
	// Start with default options provided by ChromeDP.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	// DefaultExecAllocatorOptions is headless; a visible window has to switch it off.
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),

		// GPU often causes issues in headless/containerized environments.
		chromedp.Flag("disable-gpu", cfg.Headless),

		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
	)

	if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Window.Width, cfg.Window.Height))
	}

	// Extra switches are given as "--name=value" or "--name".
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		if name == "" {
			continue
		}
		if value == "" {
			opts = append(opts, chromedp.Flag(name, true))
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}

	return opts
}

func splitArg(arg string) (string, string) {
	name, value, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
	return name, value
}
