// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package messenger

import (
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrNotConnected = errors.New("not connected to a NATS server")
)

var natsConnection *nats.Conn

// Initialize connects to the NATS server named by `nats.server`. A
// credentials file is used when `nats.credentials` is set.
func Initialize() error {
	var err error
	url := viper.GetString("nats.server")
	credentialsFile := viper.GetString("nats.credentials")
	log.Info().Str("NATSServer", url).Str("Credentials", credentialsFile).Msg("connecting to NATS server")

	opts := []nats.Option{nats.Name("atlas-analytics")}
	if credentialsFile != "" {
		opts = append(opts, nats.UserCredentials(credentialsFile))
	}

	if natsConnection, err = nats.Connect(url, opts...); err != nil {
		log.Error().Err(err).Msg("could not connect to NATS server")
		return err
	}

	return nil
}

// Enabled reports whether a NATS server is configured
func Enabled() bool {
	return viper.GetString("nats.server") != ""
}

// Close drains pending messages and closes the connection
func Close() {
	if natsConnection == nil {
		return
	}
	if err := natsConnection.Drain(); err != nil {
		log.Warn().Err(err).Msg("could not drain NATS connection")
	}
	natsConnection = nil
}
