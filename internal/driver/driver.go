// Package driver opens the browser backend named in the configuration.
package driver

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/driver/cdp"
	"github.com/xkilldash9x/dusk/internal/driver/htmldom"
	"github.com/xkilldash9x/dusk/internal/driver/selenium"
)

// Factory creates a fresh driver session.
type Factory func(ctx context.Context) (schemas.Driver, error)

// Open starts a session with the driver selected by cfg.Name.
func Open(ctx context.Context, cfg config.DriverConfig, logger *zap.Logger) (schemas.Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Opening browser driver.", zap.String("driver", cfg.Name))

	// A failed open must return a nil interface, not a typed nil.
	switch cfg.Name {
	case config.DriverChromedp, "":
		d, err := cdp.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverSelenium:
		d, err := selenium.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverHTMLDOM:
		d, err := htmldom.New(logger, htmldom.WithWindowSize(cfg.Window.Width, cfg.Window.Height))
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, schemas.NewInvalidArgument("unknown driver %q", cfg.Name)
	}
}

// NewFactory binds Open to a configuration.
func NewFactory(cfg config.DriverConfig, logger *zap.Logger) Factory {
	return func(ctx context.Context) (schemas.Driver, error) {
		return Open(ctx, cfg, logger)
	}
}
