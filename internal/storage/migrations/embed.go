package migrations

import "embed"

// PostgresFS embeds the PostgreSQL schema for launches, participations,
// engagement events, dividend rounds and holder snapshots.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the ClickHouse schema for the high-volume
// engagement event table.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
