package main

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kdimtricp/phasewatch/internal/config"
	"github.com/kdimtricp/phasewatch/pkg/logger"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := os.Getenv(config.FileEnv)
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = *c.configFlag
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			c.configErr = err
			return
		}
		if level := c.logLevel(); level != "" {
			cfg.LogLevel = level
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
}

// cliLogger is the human-readable logger for one-shot commands.
func (c *commandContext) cliLogger() (*zap.Logger, error) {
	level := c.logLevel()
	if level == "" {
		level = "warn"
	}
	return logger.NewDevelopment(level)
}
