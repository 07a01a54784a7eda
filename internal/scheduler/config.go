// Package scheduler runs inspection events on a sharded worker pool.
package scheduler

// Config defines the worker pool configuration.
type Config struct {
	// Workers is the number of shards. Each shard processes its events
	// one at a time, in submission order.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// QueueSize is the per-shard backlog before Submit blocks.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:   4,
		QueueSize: 64,
	}
}

func (c *Config) normalize() *Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize < 0 {
		out.QueueSize = 0
	}
	return &out
}
