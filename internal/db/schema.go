package db

const schemaSQL = `
-- ==========================================================================
-- COMMAND HISTORY (one row per receiver exchange)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS exchanges (
  exchange_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  command TEXT NOT NULL,
  fragment TEXT NOT NULL,
  zone_path TEXT NOT NULL DEFAULT '',
  result_code INTEGER,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  outcome TEXT NOT NULL,
  error TEXT,
  request_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_exchanges_timestamp ON exchanges(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_exchanges_outcome ON exchanges(outcome);
`

// requestIDIndexSQL runs after migrations, since older databases gain the
// column there.
const requestIDIndexSQL = `CREATE INDEX IF NOT EXISTS idx_exchanges_request_id ON exchanges(request_id) WHERE request_id IS NOT NULL;`
