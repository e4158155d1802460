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


package messenger_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/messenger"
	"github.com/spf13/viper"
)

var _ = Describe("Reload events", func() {
	It("describe the replaced prefix", func() {
		event := messenger.NewReloadEvent(analytics.MustParsePath("atlas/price-data"), 3, 5)
		Expect(event.Prefix).To(Equal("atlas/price-data"))
		Expect(event.Deleted).To(Equal(int64(3)))
		Expect(event.Inserted).To(Equal(5))
		Expect(event.Time).ToNot(BeEmpty())
	})

	It("cannot be published without a connection", func() {
		err := messenger.PublishReload(messenger.NewReloadEvent(analytics.MustParsePath("atlas"), 0, 0))
		Expect(err).To(MatchError(messenger.ErrNotConnected))
	})

	It("cannot be subscribed to without a connection", func() {
		_, err := messenger.SubscribeReload(func(*messenger.ReloadEvent) {})
		Expect(err).To(MatchError(messenger.ErrNotConnected))
	})

	It("are disabled until a server is configured", func() {
		viper.Set("nats.server", "")
		Expect(messenger.Enabled()).To(BeFalse())
		viper.Set("nats.server", "nats://localhost:4222")
		Expect(messenger.Enabled()).To(BeTrue())
		viper.Set("nats.server", "")
	})
})
