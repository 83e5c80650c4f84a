package storage

// Schema contains the SQL schema for the secure store. Bootstrapped
// idempotently on every open; there is no migration machinery.
//
// Only columns needed for indexed lookup and listing are plaintext.
// Everything variable or sensitive lives inside encrypted_payload.
const Schema = `
-- Accounts table
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL COLLATE NOCASE UNIQUE,
    account_type TEXT NOT NULL,
    auth_type TEXT NOT NULL,
    encrypted_payload TEXT NOT NULL,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

-- OAuth2 tokens table (one live token per account)
CREATE TABLE IF NOT EXISTS oauth2_tokens (
    account_id TEXT PRIMARY KEY,
    encrypted_payload TEXT NOT NULL,
    expires_at TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
    -- declarative only; account deletion cascades in DeleteAccount, and
    -- a token may be held before its account row exists
    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

-- Application settings table
CREATE TABLE IF NOT EXISTS app_settings (
    key TEXT PRIMARY KEY,
    encrypted_payload TEXT NOT NULL,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

-- Mail cache table
CREATE TABLE IF NOT EXISTS mail_cache (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    folder TEXT NOT NULL,
    uid TEXT NOT NULL,
    encrypted_payload TEXT NOT NULL,
    flags TEXT,
    date_received TEXT,
    cached_at TEXT DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts(id),
    UNIQUE(account_id, folder, uid)
);

-- Indexes for sub-linear listing and folder-scoped queries
CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
CREATE INDEX IF NOT EXISTS idx_mail_cache_account ON mail_cache(account_id);
CREATE INDEX IF NOT EXISTS idx_mail_cache_folder ON mail_cache(account_id, folder);
`
