package chordialmem

const VectorDimensions = 768

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    preferred_name TEXT,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    schedule_preferences TEXT NOT NULL DEFAULT '{}',
    bot_personality TEXT NOT NULL DEFAULT 'friendly',
    onboarding_state TEXT DEFAULT 'none',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS platform_identities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL REFERENCES users(id),
    platform TEXT NOT NULL,
    platform_user_id TEXT NOT NULL,
    username TEXT,
    created_at DATETIME NOT NULL,
    UNIQUE(platform, platform_user_id)
);

CREATE INDEX IF NOT EXISTS idx_identities_user ON platform_identities(user_id);

CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL REFERENCES users(id),
    instruction TEXT NOT NULL,
    memory_type TEXT NOT NULL,
    source TEXT NOT NULL,
    keywords TEXT NOT NULL DEFAULT '',
    weighting REAL NOT NULL DEFAULT 1.0,
    core INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    ttl_seconds INTEGER,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at DATETIME,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, active);
`

const vecSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(
    memory_id INTEGER PRIMARY KEY,
    embedding FLOAT[768]
);
`
