package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser"
	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/driver"
)

// Components holds the driver session and browser scope a command works with.
type Components struct {
	Driver  schemas.Driver
	Browser *browser.Browser
	logger  *zap.Logger
}

// Shutdown quits the driver. It uses its own deadline so it completes even
// when the command context was cancelled.
func (c *Components) Shutdown() {
	if c.Driver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Driver.Quit(ctx); err != nil {
		c.logger.Warn("Error during driver shutdown.", zap.Error(err))
		return
	}
	c.logger.Debug("Driver shut down.")
}

// ComponentFactory creates the components for one command run. Tests swap
// it for one that serves fixtures.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory returns the factory that opens the configured driver.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	d, err := driver.Open(ctx, cfg.Driver, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s driver: %w", cfg.Driver.Name, err)
	}
	return &Components{
		Driver:  d,
		Browser: browser.New(d, cfg.Browser, logger),
		logger:  logger,
	}, nil
}
