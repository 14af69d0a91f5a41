package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over top of the defaults. Values absent
// from the file keep their default.
func Load(path string) (*PipelineConfig, error) {
	c := NewDefaultPipelineConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening config")
	}
	defer f.Close()

	if err = yaml.NewDecoder(f).Decode(c); err != nil {
		return nil, errors.Wrap(err, "error decoding config")
	}

	if err = c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PipelineConfig) validate() error {
	if c.Load.Workers < 1 {
		return errors.New("load.workers must be at least 1")
	}
	if c.Load.BatchSize < 1 {
		return errors.New("load.batchSize must be at least 1")
	}
	if c.Load.PrefetchWindow < 1 {
		return errors.New("load.prefetchWindow must be at least 1")
	}
	if c.Hashing.Iterations < 1 {
		return errors.New("hashing.iterations must be at least 1")
	}
	if c.Database.Pool == nil {
		c.Database.Pool = NewDefaultPipelineConfig().Database.Pool
	}
	return nil
}
