package storage

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		profile BLOB,
		last_profile_update TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS content (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		first_saved_at TEXT,
		summary TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS content_categories (
		content_id TEXT NOT NULL,
		category TEXT NOT NULL,
		PRIMARY KEY (content_id, category),
		FOREIGN KEY (content_id) REFERENCES content(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS content_items (
		user_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		saved_at TEXT NOT NULL,
		UNIQUE (user_id, content_id),
		FOREIGN KEY (content_id) REFERENCES content(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		parent_id TEXT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',       -- JSON array
		url_patterns TEXT NOT NULL DEFAULT '[]',   -- JSON array
		bucketing_enabled INTEGER NOT NULL DEFAULT 1,
		profile BLOB,                              -- little-endian float64, unit length
		profile_state TEXT NOT NULL DEFAULT 'none',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (parent_id) REFERENCES folders(id) ON DELETE SET NULL
	)`,

	`CREATE TABLE IF NOT EXISTS folder_items (
		id TEXT PRIMARY KEY,
		folder_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		added_at TEXT NOT NULL,
		UNIQUE (folder_id, content_id, user_id),
		FOREIGN KEY (folder_id) REFERENCES folders(id) ON DELETE CASCADE,
		FOREIGN KEY (content_id) REFERENCES content(id) ON DELETE CASCADE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(owner_id, bucketing_enabled)`,
	`CREATE INDEX IF NOT EXISTS idx_content_items_user ON content_items(user_id, saved_at)`,
	`CREATE INDEX IF NOT EXISTS idx_folder_items_content ON folder_items(content_id, user_id)`,
}
