package storage

const Schema = `
CREATE TABLE IF NOT EXISTS linked_accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL CHECK (provider IN ('letterboxd', 'goodreads')),
    username TEXT NOT NULL,
    feed_url TEXT NOT NULL,
    last_synced_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_linked_accounts_user ON linked_accounts(user_id);

CREATE TABLE IF NOT EXISTS catalog_items (
    id TEXT PRIMARY KEY,
    media_type TEXT NOT NULL CHECK (media_type IN ('movie', 'book')),
    external_id TEXT NOT NULL,
    source TEXT NOT NULL CHECK (source IN ('letterboxd', 'goodreads')),
    title TEXT NOT NULL,
    poster_url TEXT,
    author TEXT,
    release_year INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source, external_id)
);

CREATE TABLE IF NOT EXISTS consumption_log (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    catalog_item_id TEXT NOT NULL,
    consumed_at DATETIME NOT NULL,
    year_consumed INTEGER NOT NULL,
    rating INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (catalog_item_id) REFERENCES catalog_items(id) ON DELETE CASCADE,
    UNIQUE(user_id, catalog_item_id, consumed_at)
);

CREATE INDEX IF NOT EXISTS idx_consumption_user_year ON consumption_log(user_id, year_consumed);
CREATE INDEX IF NOT EXISTS idx_consumption_consumed ON consumption_log(consumed_at DESC);

CREATE TABLE IF NOT EXISTS yearly_goals (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    year INTEGER NOT NULL,
    media_type TEXT NOT NULL CHECK (media_type IN ('movie', 'book')),
    target INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, year, media_type)
);
`
