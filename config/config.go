// Package config holds the job-wide options read by the task graph compiler.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// JobConfig is the job-wide configuration, usually loaded from a YAML file.
//
// It is passed explicitly to the compiler, there is no global instance.
type JobConfig struct {
	// RingAllReduceEnableP2P enables placing ring all-reduce send registers directly on the receiving
	// accelerator's memory, when both accelerators support peer access.
	RingAllReduceEnableP2P bool `yaml:"cuda_ring_all_reduce_enable_p2p"`

	// EnableReduceMemSharing aliases the registers of reduction groups onto a shared arena.
	EnableReduceMemSharing bool `yaml:"enable_reduce_mem_sharing"`

	// ReduceMemSize is the size in bytes of each reduction group's shared arena. 0 means the size is
	// taken from the reduced blob.
	ReduceMemSize int64 `yaml:"reduce_mem_size"`

	// RingAllReduceSliceFactor is the default number of slices each rank segment is cut into, per link.
	RingAllReduceSliceFactor int `yaml:"cuda_ring_all_reduce_slice_factor"`

	// RingAllReduceNumLinks is the default number of ring links.
	RingAllReduceNumLinks int `yaml:"cuda_ring_all_reduce_num_links"`
}

// Default returns the default configuration.
func Default() *JobConfig {
	return &JobConfig{
		RingAllReduceEnableP2P:   false,
		EnableReduceMemSharing:   true,
		RingAllReduceSliceFactor: 1,
		RingAllReduceNumLinks:    1,
	}
}

// Parse reads a YAML configuration. Fields not set keep their Default() values.
func Parse(data []byte) (*JobConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse job configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the YAML configuration file at path.
func Load(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read job configuration from %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "job configuration %q", path)
	}
	return cfg, nil
}

// Validate checks the values are in range.
func (c *JobConfig) Validate() error {
	if c.RingAllReduceSliceFactor < 1 {
		return errors.Errorf("cuda_ring_all_reduce_slice_factor must be >= 1, got %d", c.RingAllReduceSliceFactor)
	}
	if c.RingAllReduceNumLinks < 1 {
		return errors.Errorf("cuda_ring_all_reduce_num_links must be >= 1, got %d", c.RingAllReduceNumLinks)
	}
	if c.ReduceMemSize < 0 {
		return errors.Errorf("reduce_mem_size must be >= 0, got %d", c.ReduceMemSize)
	}
	return nil
}
