package pcontext

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/carebridge/claims-pipeline/common/config"
)

func Initial(c *config.PipelineConfig) PipelineContext {
	return PipelineContext{
		Context: context.Background(),
		Log:     logrus.WithFields(logrus.Fields{"nocontext": true}),
		Config:  c,
	}.populate()
}

type PipelineContext struct {
	context.Context

	// These are also stored on the context object itself
	Log    *logrus.Entry          // cp.logger
	Config *config.PipelineConfig // cp.config
}

func (c PipelineContext) populate() PipelineContext {
	c.Context = context.WithValue(c.Context, "cp.logger", c.Log)
	c.Context = context.WithValue(c.Context, "cp.config", c.Config)
	return c
}

func (c PipelineContext) ReplaceLogger(log *logrus.Entry) PipelineContext {
	ctx := context.WithValue(c.Context, "cp.logger", log)
	return PipelineContext{
		Context: ctx,
		Log:     log,
		Config:  c.Config,
	}
}

func (c PipelineContext) LogWithFields(fields logrus.Fields) PipelineContext {
	return c.ReplaceLogger(c.Log.WithFields(fields))
}

func (c PipelineContext) WithContext(ctx context.Context) PipelineContext {
	next := PipelineContext{
		Context: ctx,
		Log:     c.Log,
		Config:  c.Config,
	}
	return next.populate()
}
