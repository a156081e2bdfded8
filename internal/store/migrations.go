package store

// migrations are applied in order; each entry runs once and is recorded in schema_version.
var migrations = []string{
	// 1: people, credentials, sessions
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		class_id TEXT,
		created_at TEXT NOT NULL
	);
	CREATE TABLE credentials (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		provider_account_id TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		expires_at INTEGER,
		refresh_token_expires_in INTEGER,
		token_type TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, provider)
	);
	CREATE TABLE sessions (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,

	// 2: classes, join requests, teams, projects
	`CREATE TABLE classes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE TABLE class_teachers (
		class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		teacher_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (class_id, teacher_id)
	);
	CREATE TABLE class_requests (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		UNIQUE (class_id, user_id)
	);
	CREATE TABLE teams (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (class_id, name)
	);
	CREATE TABLE team_members (
		team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL DEFAULT 'member',
		PRIMARY KEY (team_id, user_id)
	);
	CREATE TABLE projects (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		repository_url TEXT NOT NULL DEFAULT '',
		repository_owner TEXT NOT NULL DEFAULT '',
		repository_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,

	// 3: sprints and the issue mirror
	`CREATE TABLE sprints (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		goal TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'planned',
		created_at TEXT NOT NULL
	);
	CREATE TABLE issues (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		sprint_id TEXT REFERENCES sprints(id) ON DELETE SET NULL,
		issue_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		state TEXT NOT NULL DEFAULT 'open',
		status TEXT NOT NULL DEFAULT 'todo',
		labels TEXT NOT NULL DEFAULT '[]',
		assignees TEXT NOT NULL DEFAULT '[]',
		html_url TEXT NOT NULL DEFAULT '',
		github_created_at TEXT NOT NULL DEFAULT '',
		github_updated_at TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (project_id, issue_number)
	);
	CREATE INDEX idx_issues_sprint ON issues(sprint_id);`,

	// 4: standups and retrospectives
	`CREATE TABLE standups (
		id TEXT PRIMARY KEY,
		sprint_id TEXT NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		yesterday TEXT NOT NULL,
		today TEXT NOT NULL,
		blockers TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_standups_sprint_user ON standups(sprint_id, user_id, date);
	CREATE TABLE retrospectives (
		id TEXT PRIMARY KEY,
		sprint_id TEXT NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		what_went_well TEXT NOT NULL,
		what_can_improve TEXT NOT NULL,
		action_items TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (sprint_id, user_id)
	);`,

	// 5: one standup per user per UTC day
	`ALTER TABLE standups ADD COLUMN day TEXT NOT NULL DEFAULT '';
	UPDATE standups SET day = substr(date, 1, 10);
	DELETE FROM standups WHERE rowid NOT IN (
		SELECT MIN(rowid) FROM standups GROUP BY sprint_id, user_id, day
	);
	CREATE UNIQUE INDEX idx_standups_daily ON standups(sprint_id, user_id, day);`,
}
