package main

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/maauso/avmerge-api/internal/bootstrap"
	"github.com/maauso/avmerge-api/internal/combine"
	"github.com/maauso/avmerge-api/internal/config"
	"github.com/maauso/avmerge-api/internal/media"
)

// combiner is the part of *combine.Combiner the CLI uses.
type combiner interface {
	Combine(ctx context.Context, req combine.Request) (combine.Result, error)
}

type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger    *slog.Logger
	combiner  combiner
	inspector media.MediaInspector
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig(stderr io.Writer) (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.config != nil {
			return
		}
		c.config, c.configErr = config.Load()
	})
	if c.configErr != nil {
		return nil, c.configErr
	}
	if c.logger == nil {
		c.logger = c.config.NewLoggerTo(stderr)
	}
	return c.config, nil
}

// ensureMedia builds the combiner and inspector on first use.
func (c *commandContext) ensureMedia(stderr io.Writer) error {
	cfg, err := c.ensureConfig(stderr)
	if err != nil {
		return err
	}
	if c.combiner == nil || c.inspector == nil {
		comb, insp := bootstrap.NewCombiner(cfg, c.logger)
		if c.combiner == nil {
			c.combiner = comb
		}
		if c.inspector == nil {
			c.inspector = insp
		}
	}
	return nil
}
