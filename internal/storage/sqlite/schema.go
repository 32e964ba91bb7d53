package sqlite

const schemaSQL = `
-- Jobs table
-- input_params and output_data are opaque serialized JSON; the coordinator
-- never queries inside them. All timestamps are Unix milliseconds.
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	job_hash TEXT NOT NULL,
	job_type TEXT NOT NULL,
	input_params TEXT,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	claimed_by TEXT,
	claimed_at INTEGER,
	progress_current INTEGER,
	progress_total INTEGER,
	console_output TEXT,
	output_data TEXT,
	error_message TEXT,
	last_heartbeat INTEGER
);

-- The unique hash index is what serializes concurrent submissions of the
-- same (job_type, input_params) pair.
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_hash ON jobs(job_hash);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(job_type, status);
CREATE INDEX IF NOT EXISTS idx_jobs_claimed_by ON jobs(claimed_by);

-- Runners table
-- capabilities is a JSON array of job type strings.
CREATE TABLE IF NOT EXISTS runners (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	capabilities TEXT NOT NULL,
	registered_at INTEGER NOT NULL,
	last_seen INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runners_last_seen ON runners(last_seen);
`
