// Package database は配信状態テーブル delivery_states を置くPostgreSQLへの接続とマイグレーションを扱う。
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open はPostgresStateRepo用の接続プールを返す。
// DATABASE_URLの形式は "postgres://relay:pass@db:5432/dailyrelay?sslmode=disable"。
// 接続の確認は行わない。起動時の疎通確認と接続できない場合のメモリストアへの切り替えは呼び出し側が行う。
// 配信サイクルが書き込むのは状態キーごとに1行だけなので、プールは4接続に制限する。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
