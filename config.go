// Copyright (c) 2023 The gchannel Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package gchannel

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/panjf2000/gchannel/logging"
)

// Config is the file form of Options, keys missing from the file keep their defaults.
//
//	read_buffer_size = 65536
//	pool_capacity = 67108864
//	pool_block_timeout = "1s"
//	outbound_queue_capacity = 1024
//	keep_alive = true
//	blocking_write = false
//	tcp_no_delay = true
//	tcp_keep_alive = "30s"
//	reactor = true
//	log_path = "/var/log/gchannel.log"
//	log_level = "info"
type Config struct {
	ReadBufferSize        int    `toml:"read_buffer_size"`
	PoolCapacity          int    `toml:"pool_capacity"`
	PoolBlockTimeout      string `toml:"pool_block_timeout"`
	OutboundQueueCapacity int    `toml:"outbound_queue_capacity"`
	KeepAlive             bool   `toml:"keep_alive"`
	BlockingWrite         bool   `toml:"blocking_write"`
	TCPNoDelay            bool   `toml:"tcp_no_delay"`
	TCPKeepAlive          string `toml:"tcp_keep_alive"`
	Reactor               bool   `toml:"reactor"`
	LogPath               string `toml:"log_path"`
	LogLevel              string `toml:"log_level"`

	meta toml.MetaData
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	cfg := new(Config)
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load gchannel config: %w", err)
	}
	cfg.meta = meta
	return cfg, nil
}

// DecodeConfig parses a TOML configuration from a string.
func DecodeConfig(data string) (*Config, error) {
	cfg := new(Config)
	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode gchannel config: %w", err)
	}
	cfg.meta = meta
	return cfg, nil
}

// Options converts the keys defined in the file into options.
func (cfg *Config) Options() ([]Option, error) {
	var opts []Option
	defined := cfg.meta.IsDefined

	if defined("read_buffer_size") {
		opts = append(opts, WithReadBufferSize(cfg.ReadBufferSize))
	}
	if defined("pool_capacity") {
		opts = append(opts, WithPoolCapacity(cfg.PoolCapacity))
	}
	if defined("pool_block_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(cfg.PoolBlockTimeout))
		if err != nil {
			return nil, fmt.Errorf("parse pool_block_timeout: %w", err)
		}
		opts = append(opts, WithPoolBlockTimeout(d))
	}
	if defined("outbound_queue_capacity") {
		opts = append(opts, WithOutboundQueueCapacity(cfg.OutboundQueueCapacity))
	}
	if defined("keep_alive") {
		opts = append(opts, WithKeepAlive(cfg.KeepAlive))
	}
	if defined("blocking_write") {
		opts = append(opts, WithBlockingWrite(cfg.BlockingWrite))
	}
	if defined("tcp_no_delay") {
		opt := TCPDelay
		if cfg.TCPNoDelay {
			opt = TCPNoDelay
		}
		opts = append(opts, WithTCPNoDelay(opt))
	}
	if defined("tcp_keep_alive") {
		d, err := time.ParseDuration(strings.TrimSpace(cfg.TCPKeepAlive))
		if err != nil {
			return nil, fmt.Errorf("parse tcp_keep_alive: %w", err)
		}
		opts = append(opts, WithTCPKeepAlive(d))
	}
	if defined("reactor") {
		opts = append(opts, WithReactor(cfg.Reactor))
	}
	if defined("log_path") {
		opts = append(opts, WithLogPath(strings.TrimSpace(cfg.LogPath)))
	}
	if defined("log_level") {
		lvl, err := logging.ParseLevel(strings.TrimSpace(cfg.LogLevel))
		if err != nil {
			return nil, fmt.Errorf("parse log_level: %w", err)
		}
		opts = append(opts, WithLogLevel(lvl))
	}
	return opts, nil
}
