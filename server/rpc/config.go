/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
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

package rpc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRPCPort occurs when the port in the config is invalid.
	ErrInvalidRPCPort = errors.New("invalid port number for RPC server")
	// ErrInvalidMaxRequestBytes occurs when the request size limit is invalid.
	ErrInvalidMaxRequestBytes = errors.New("invalid max request bytes for RPC server")
)

// Config is the configuration for creating a Server instance.
type Config struct {
	// Port is the port number for the RPC server.
	Port int `yaml:"Port"`

	// MaxRequestBytes is the maximum client request size in bytes the server
	// will accept, attachments included.
	MaxRequestBytes int `yaml:"MaxRequestBytes"`

	// ReadTimeout is the time allowed to read a whole request.
	ReadTimeout string `yaml:"ReadTimeout"`

	// EnablePprof serves the runtime profiles under /debug/pprof.
	EnablePprof bool `yaml:"EnablePprof"`
}

// Validate validates the port number and the limits.
func (c *Config) Validate() error {
	if c.Port < 1 || 65535 < c.Port {
		return fmt.Errorf("must be between 1 and 65535, given %d: %w", c.Port, ErrInvalidRPCPort)
	}

	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("must be positive, given %d: %w", c.MaxRequestBytes, ErrInvalidMaxRequestBytes)
	}

	if _, err := time.ParseDuration(c.ReadTimeout); err != nil {
		return fmt.Errorf(`invalid argument "%s" for "--rpc-read-timeout" flag: %w`, c.ReadTimeout, err)
	}

	return nil
}

// ParseReadTimeout returns the read timeout.
func (c *Config) ParseReadTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 0
	}
	return timeout
}
