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
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const DefaultReloadSubject = "analytics.reload"

// ReloadEvent announces that the facts under Prefix were replaced
type ReloadEvent struct {
	Prefix   string `json:"prefix"`
	Deleted  int64  `json:"deleted,omitempty"`
	Inserted int    `json:"inserted,omitempty"`
	Time     string `json:"time"`
}

func reloadSubject() string {
	subject := viper.GetString("nats.reload_subject")
	if subject == "" {
		subject = DefaultReloadSubject
	}
	return subject
}

// NewReloadEvent describes a reload of prefix
func NewReloadEvent(prefix analytics.Path, deleted int64, inserted int) *ReloadEvent {
	return &ReloadEvent{
		Prefix:   prefix.String(),
		Deleted:  deleted,
		Inserted: inserted,
		Time:     time.Now().In(common.GetTimezone()).Format(time.RFC3339),
	}
}

// PublishReload tells every subscribed server that cached results computed
// from facts under the event's prefix are stale
func PublishReload(event *ReloadEvent) error {
	if natsConnection == nil {
		return ErrNotConnected
	}

	msg, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("could not serialize reload event to JSON")
		return err
	}

	if err := natsConnection.Publish(reloadSubject(), msg); err != nil {
		log.Error().Err(err).Str("Prefix", event.Prefix).Msg("could not publish reload event")
		return err
	}

	return natsConnection.Flush()
}

// SubscribeReload calls fn for every reload event published by any instance
func SubscribeReload(fn func(*ReloadEvent)) (*nats.Subscription, error) {
	if natsConnection == nil {
		return nil, ErrNotConnected
	}

	return natsConnection.Subscribe(reloadSubject(), func(msg *nats.Msg) {
		event := &ReloadEvent{}
		if err := json.Unmarshal(msg.Data, event); err != nil {
			log.Warn().Err(err).Str("Subject", msg.Subject).Msg("ignoring malformed reload event")
			return
		}
		fn(event)
	})
}
