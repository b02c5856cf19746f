// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// brokerSchemes are the transports the MQTT client supports.
var brokerSchemes = []string{"tcp://", "ws://", "wss://", "ssl://"}

// Validate checks struct tags first, then the cross-field constraints
// the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if !hasBrokerScheme(c.Broker.URL) {
		return fmt.Errorf("broker url %q must start with one of %s",
			c.Broker.URL, strings.Join(brokerSchemes, ", "))
	}
	if c.Broker.ReconnectInitialDelay > c.Broker.ReconnectMaxDelay {
		return fmt.Errorf("reconnect initial delay %s exceeds max delay %s",
			c.Broker.ReconnectInitialDelay, c.Broker.ReconnectMaxDelay)
	}
	if c.Broker.ConnectTimeout <= 0 {
		return fmt.Errorf("broker connect timeout must be positive, got %s", c.Broker.ConnectTimeout)
	}
	if c.Aggregation.RefreshInterval <= 0 {
		return fmt.Errorf("aggregation refresh interval must be positive, got %s", c.Aggregation.RefreshInterval)
	}
	for _, topic := range c.Broker.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("broker topics must not be blank")
		}
	}
	return nil
}

func hasBrokerScheme(url string) bool {
	for _, scheme := range brokerSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
