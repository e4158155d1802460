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

package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// types

type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	ErrNotConnected = errors.New("database pool has not been configured")
)

// SeriesTable is the name of the table holding analytics series
const SeriesTable = "analytics_series"

//go:embed schema.sql
var schema string

// Private

var pool PgxIface
var openTransactions map[string]string
var openTransactionsLocker sync.Mutex

func track(trxID, caller string) {
	openTransactionsLocker.Lock()
	defer openTransactionsLocker.Unlock()
	openTransactions[trxID] = caller
}

func untrack(trxID string) {
	openTransactionsLocker.Lock()
	defer openTransactionsLocker.Unlock()
	delete(openTransactions, trxID)
}

// Public

func SetPool(myPool PgxIface) {
	openTransactionsLocker.Lock()
	openTransactions = make(map[string]string)
	openTransactionsLocker.Unlock()
	pool = myPool
}

func Connect(ctx context.Context) error {
	var err error
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}
	SetPool(myPool)
	return nil
}

// Close shuts down the pool if it was created by Connect
func Close() {
	if p, ok := pool.(*pgxpool.Pool); ok {
		p.Close()
	}
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	openTransactionsLocker.Lock()
	defer openTransactionsLocker.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// NumOpenTransactions returns the count of transactions that have been
// started but neither committed nor rolled back
func NumOpenTransactions() int {
	openTransactionsLocker.Lock()
	defer openTransactionsLocker.Unlock()
	return len(openTransactions)
}

// Trx begins a tracked transaction. When `database.role` is configured the
// transaction switches to that role before it is returned.
func Trx(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, ErrNotConnected
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	// record transactions in openTransaction log
	_, file, lineno, ok := runtime.Caller(1)
	caller := fmt.Sprintf("[%v] %s:%d", ok, file, lineno)
	trxID := uuid.New().String()
	track(trxID, caller)

	role := viper.GetString("database.role")
	wrappedTrx := &TrackedTx{
		id:   trxID,
		role: role,
		tx:   trx,
	}

	if role == "" {
		return wrappedTrx, nil
	}

	// NOTE: SET ROLE cannot take a bind parameter so the identifier is
	// sanitized here
	ident := pgx.Identifier{role}
	sql := fmt.Sprintf("SET ROLE %s", ident.Sanitize())
	if _, err = wrappedTrx.Exec(ctx, sql); err != nil {
		log.Error().Stack().Err(err).Str("Role", role).Msg("could not switch role")
		if err := wrappedTrx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	return wrappedTrx, nil
}

// Migrate creates the analytics tables and indexes if they do not exist
func Migrate(ctx context.Context) error {
	trx, err := Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction for migration")
		return err
	}

	if _, err := trx.Exec(ctx, schema); err != nil {
		log.Error().Stack().Err(err).Msg("could not create schema")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit schema")
		return err
	}

	log.Info().Str("Table", SeriesTable).Msg("database schema is up to date")
	return nil
}
