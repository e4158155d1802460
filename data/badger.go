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

package data

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	badgerSeriesPrefix = "series/"
	badgerIDSeparator  = "\x00"
)

// BadgerStore keeps series in an embedded badger database. Each series is
// stored under `series/<source>\x00<id>` so clearing a source is a prefix
// scan. Values are zstd compressed JSON.
type BadgerStore struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// zstdLevel maps the configured compression level (1-4) to a zstd encoder
// level
func zstdLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// NewBadgerStore opens (or creates) a badger database at path. An empty path
// opens an in-memory database.
func NewBadgerStore(path string, compressionLevel int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not open badger database")
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(compressionLevel)))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &BadgerStore{
		db:      db,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func seriesKey(s *analytics.Series) []byte {
	return []byte(badgerSeriesPrefix + s.Source.String() + badgerIDSeparator + s.ID)
}

// sourcePrefixes returns the key prefixes covering a clear of source
func sourcePrefixes(source analytics.Path, recursive bool) [][]byte {
	if recursive && source.IsEmpty() {
		return [][]byte{[]byte(badgerSeriesPrefix)}
	}
	prefixes := [][]byte{[]byte(badgerSeriesPrefix + source.String() + badgerIDSeparator)}
	if recursive {
		prefixes = append(prefixes, []byte(badgerSeriesPrefix+source.String()+analytics.PathSeparator))
	}
	return prefixes
}

func (b *BadgerStore) encode(s *analytics.Series) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return b.encoder.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

func (b *BadgerStore) decode(val []byte) (*analytics.Series, error) {
	raw, err := b.decoder.DecodeAll(val, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptSeries, err.Error())
	}
	s := &analytics.Series{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptSeries, err.Error())
	}
	return s, nil
}

// scan calls fn for every stored series
func (b *BadgerStore) scan(ctx context.Context, fn func(*analytics.Series)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerSeriesPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var s *analytics.Series
			err := it.Item().Value(func(val []byte) error {
				var err error
				s, err = b.decode(val)
				return err
			})
			if err != nil {
				log.Error().Err(err).Bytes("Key", it.Item().KeyCopy(nil)).Msg("could not decode series")
				return err
			}
			fn(s)
		}
		return nil
	})
}

func (b *BadgerStore) GetMatchingSeries(ctx context.Context, query *analytics.SeriesQuery) ([]*analytics.Series, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "badger.GetMatchingSeries")
	defer span.End()

	res := make([]*analytics.Series, 0)
	err := b.scan(ctx, func(s *analytics.Series) {
		if query.Matches(s) {
			res = append(res, s)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "badger scan failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("series.count", len(res)))
	return res, nil
}

func (b *BadgerStore) ClearSeriesBySource(ctx context.Context, source analytics.Path, recursive bool) (int64, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "badger.ClearSeriesBySource")
	defer span.End()

	subLog := log.With().Str("Source", source.String()).Bool("Recursive", recursive).Logger()

	keys := make([][]byte, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		for _, prefix := range sourcePrefixes(source, recursive) {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "badger scan failed")
		subLog.Error().Err(err).Msg("could not list series to clear")
		return 0, err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "badger delete failed")
			subLog.Error().Err(err).Msg("could not delete series")
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "badger flush failed")
		subLog.Error().Err(err).Msg("could not flush deletes")
		return 0, err
	}

	subLog.Debug().Int("Deleted", len(keys)).Msg("cleared series from badger store")
	return int64(len(keys)), nil
}

func (b *BadgerStore) AddSeriesValues(ctx context.Context, series []*analytics.Series) ([]*analytics.Series, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "badger.AddSeriesValues")
	defer span.End()

	inserted := make([]*analytics.Series, 0, len(series))
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, s := range series {
		if err := s.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid series")
			log.Warn().Object("Series", s).Err(err).Msg("refusing to insert invalid series")
			return nil, err
		}
		cp := *s
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}
		val, err := b.encode(&cp)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode failed")
			return nil, err
		}
		if err := wb.Set(seriesKey(&cp), val); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "badger write failed")
			return nil, err
		}
		inserted = append(inserted, &cp)
	}

	if err := wb.Flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "badger flush failed")
		log.Error().Err(err).Int("NumSeries", len(series)).Msg("could not flush series")
		return nil, err
	}

	return inserted, nil
}

func (b *BadgerStore) catalog(ctx context.Context) (*catalog, error) {
	c := newCatalog()
	if err := b.scan(ctx, c.add); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *BadgerStore) Dimensions(ctx context.Context) ([]*analytics.DimensionCatalog, error) {
	c, err := b.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.Dimensions(), nil
}

func (b *BadgerStore) Metrics(ctx context.Context) ([]analytics.Metric, error) {
	c, err := b.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.Metrics(), nil
}

func (b *BadgerStore) Currencies(ctx context.Context) ([]string, error) {
	c, err := b.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.Currencies(), nil
}

func (b *BadgerStore) Close() error {
	b.encoder.Close()
	b.decoder.Close()
	return b.db.Close()
}
