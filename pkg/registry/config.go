/*
 * Copyright 2025 Herdworks, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package registry

import (
	"fmt"
	"time"
)

const (
	// DefaultHeartbeatTimeout keeps the stock 3x ratio over the sweep
	// interval so a single missed sweep never flips a live device.
	DefaultHeartbeatTimeout = 6 * time.Second

	// DefaultSweepInterval is how often the expiry sweep runs.
	DefaultSweepInterval = 2 * time.Second
)

// Config holds the presence registry's timing policy.
type Config struct {
	// HeartbeatTimeout is how long a device may go without a heartbeat or
	// registration before the sweep flips it to OFFLINE.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout"`

	// SweepInterval is the period of the expiry sweep. It must be strictly
	// less than HeartbeatTimeout.
	SweepInterval time.Duration `json:"sweep_interval"`
}

// DefaultConfig returns the stock timing policy.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		SweepInterval:    DefaultSweepInterval,
	}
}

// Validate rejects timing combinations that would let sweep jitter mark a
// live device offline.
func (c *Config) Validate() error {
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("%w: heartbeat_timeout must be positive, got %s", ErrInvalidConfig, c.HeartbeatTimeout)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive, got %s", ErrInvalidConfig, c.SweepInterval)
	}

	if c.HeartbeatTimeout <= c.SweepInterval {
		return fmt.Errorf("%w: heartbeat_timeout %s must exceed sweep_interval %s",
			ErrInvalidConfig, c.HeartbeatTimeout, c.SweepInterval)
	}

	return nil
}
