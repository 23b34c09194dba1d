package store

const schema = `
CREATE TABLE IF NOT EXISTS posts (
    id         INTEGER PRIMARY KEY,
    author     TEXT NOT NULL,
    content    TEXT NOT NULL DEFAULT '',
    flagged    BOOLEAN NOT NULL DEFAULT 0,
    timestamp  INTEGER NOT NULL,
    likes      INTEGER NOT NULL DEFAULT 0,
    replies    INTEGER NOT NULL DEFAULT 0,
    synced_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author);
CREATE INDEX IF NOT EXISTS idx_posts_timestamp ON posts(timestamp);

CREATE TABLE IF NOT EXISTS reputation_snapshots (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    author     TEXT NOT NULL,
    score      INTEGER NOT NULL,
    checked_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reputation_author ON reputation_snapshots(author, checked_at);

CREATE TABLE IF NOT EXISTS sync_runs (
    id          TEXT PRIMARY KEY,
    from_id     INTEGER NOT NULL,
    to_id       INTEGER NOT NULL,
    fetched     INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    started_at  DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);

CREATE TABLE IF NOT EXISTS trending_alerts (
    post_id    INTEGER PRIMARY KEY REFERENCES posts(id),
    score      REAL NOT NULL,
    alerted_at DATETIME NOT NULL
);
`
