package database

const schema = `
CREATE TABLE IF NOT EXISTS crawl_jobs (
	id                  TEXT PRIMARY KEY,
	channel_url         TEXT NOT NULL,
	max_items           INTEGER NOT NULL,
	include_videos      BOOLEAN NOT NULL,
	include_livestreams BOOLEAN NOT NULL,
	status              TEXT NOT NULL,
	item_count          INTEGER NOT NULL DEFAULT 0,
	error               TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_crawl_jobs_created_at ON crawl_jobs (created_at DESC);

CREATE TABLE IF NOT EXISTS crawl_items (
	job_id               TEXT NOT NULL REFERENCES crawl_jobs (id) ON DELETE CASCADE,
	position             INTEGER NOT NULL,
	url                  TEXT NOT NULL,
	title                TEXT NOT NULL,
	thumbnail            TEXT NOT NULL DEFAULT '',
	type                 TEXT NOT NULL,
	is_live              BOOLEAN NOT NULL,
	duration             TEXT NOT NULL DEFAULT '',
	views                TEXT NOT NULL DEFAULT '',
	upload_date          TEXT NOT NULL DEFAULT '',
	concurrent_viewers   TEXT NOT NULL DEFAULT '',
	scheduled_start_time TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_id, url)
);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	target_stream  TEXT NOT NULL,
	status         TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at);
`
