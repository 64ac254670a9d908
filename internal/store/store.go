package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens the database for driver and ensures the schema exists.
func New(driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "codedrill.db"
		}
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/codedrill?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// insertID runs an INSERT ... RETURNING id statement.
func insertID(ctx context.Context, q queryRower, query string, args ...any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func now() time.Time {
	return time.Now().UTC()
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS app_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	professor_id INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS announcements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	author_id INTEGER NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_templates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	question_type TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 60,
	question_count INTEGER NOT NULL DEFAULT 0,
	published BOOLEAN NOT NULL DEFAULT 0,
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	template_id INTEGER NOT NULL REFERENCES exam_templates(id) ON DELETE CASCADE,
	course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	question_type TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT 'medium',
	prompt TEXT NOT NULL,
	code_snippet TEXT NOT NULL DEFAULT '',
	options_json TEXT NOT NULL DEFAULT '[]',
	correct_answer TEXT NOT NULL DEFAULT '',
	points REAL NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	template_id INTEGER NOT NULL REFERENCES exam_templates(id) ON DELETE CASCADE,
	student_id INTEGER NOT NULL REFERENCES users(id),
	status TEXT NOT NULL DEFAULT 'in_progress',
	started_at DATETIME NOT NULL,
	deadline_at DATETIME NOT NULL,
	submitted_at DATETIME,
	auto_submitted BOOLEAN NOT NULL DEFAULT 0,
	score REAL NOT NULL DEFAULT 0,
	max_score REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS exam_answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES exam_sessions(id) ON DELETE CASCADE,
	question_id INTEGER NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	saved_at DATETIME,
	auto_points REAL,
	professor_points REAL,
	feedback TEXT NOT NULL DEFAULT '',
	llm_points REAL,
	llm_feedback TEXT NOT NULL DEFAULT '',
	needs_manual BOOLEAN NOT NULL DEFAULT 0,
	graded_at DATETIME,
	UNIQUE (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	question_id INTEGER NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
	correct BOOLEAN NOT NULL,
	source TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_question_attempts_user ON question_attempts(user_id);

CREATE TABLE IF NOT EXISTS practice_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	mode TEXT NOT NULL,
	question_type TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	started_at DATETIME NOT NULL,
	deadline_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS practice_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	practice_id INTEGER NOT NULL REFERENCES practice_sessions(id) ON DELETE CASCADE,
	question_id INTEGER NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	correct BOOLEAN,
	answered_at DATETIME
);

CREATE TABLE IF NOT EXISTS problems (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	starter_code TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS problem_submissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	problem_id INTEGER NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	language TEXT NOT NULL,
	code TEXT NOT NULL,
	verdict TEXT NOT NULL,
	runtime_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_problem_submissions_user ON problem_submissions(user_id);

CREATE TABLE IF NOT EXISTS challenges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	invite_code TEXT NOT NULL UNIQUE,
	starts_at DATETIME NOT NULL,
	ends_at DATETIME NOT NULL,
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS challenge_problems (
	challenge_id INTEGER NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	problem_id INTEGER NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	points REAL NOT NULL,
	PRIMARY KEY (challenge_id, problem_id)
);

CREATE TABLE IF NOT EXISTS challenge_participants (
	challenge_id INTEGER NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at DATETIME NOT NULL,
	PRIMARY KEY (challenge_id, user_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS app_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	professor_id BIGINT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS announcements (
	id BIGSERIAL PRIMARY KEY,
	course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	author_id BIGINT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_templates (
	id BIGSERIAL PRIMARY KEY,
	course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	question_type TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 60,
	question_count INTEGER NOT NULL DEFAULT 0,
	published BOOLEAN NOT NULL DEFAULT FALSE,
	created_by BIGINT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_questions (
	id BIGSERIAL PRIMARY KEY,
	template_id BIGINT NOT NULL REFERENCES exam_templates(id) ON DELETE CASCADE,
	course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	question_type TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT 'medium',
	prompt TEXT NOT NULL,
	code_snippet TEXT NOT NULL DEFAULT '',
	options_json TEXT NOT NULL DEFAULT '[]',
	correct_answer TEXT NOT NULL DEFAULT '',
	points DOUBLE PRECISION NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_sessions (
	id BIGSERIAL PRIMARY KEY,
	template_id BIGINT NOT NULL REFERENCES exam_templates(id) ON DELETE CASCADE,
	student_id BIGINT NOT NULL REFERENCES users(id),
	status TEXT NOT NULL DEFAULT 'in_progress',
	started_at TIMESTAMPTZ NOT NULL,
	deadline_at TIMESTAMPTZ NOT NULL,
	submitted_at TIMESTAMPTZ,
	auto_submitted BOOLEAN NOT NULL DEFAULT FALSE,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_score DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS exam_answers (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL REFERENCES exam_sessions(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	saved_at TIMESTAMPTZ,
	auto_points DOUBLE PRECISION,
	professor_points DOUBLE PRECISION,
	feedback TEXT NOT NULL DEFAULT '',
	llm_points DOUBLE PRECISION,
	llm_feedback TEXT NOT NULL DEFAULT '',
	needs_manual BOOLEAN NOT NULL DEFAULT FALSE,
	graded_at TIMESTAMPTZ,
	UNIQUE (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_attempts (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
	correct BOOLEAN NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_question_attempts_user ON question_attempts(user_id);

CREATE TABLE IF NOT EXISTS practice_sessions (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	mode TEXT NOT NULL,
	question_type TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	started_at TIMESTAMPTZ NOT NULL,
	deadline_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS practice_items (
	id BIGSERIAL PRIMARY KEY,
	practice_id BIGINT NOT NULL REFERENCES practice_sessions(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	correct BOOLEAN,
	answered_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS problems (
	id BIGSERIAL PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	starter_code TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS problem_submissions (
	id BIGSERIAL PRIMARY KEY,
	problem_id BIGINT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	language TEXT NOT NULL,
	code TEXT NOT NULL,
	verdict TEXT NOT NULL,
	runtime_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_problem_submissions_user ON problem_submissions(user_id);

CREATE TABLE IF NOT EXISTS challenges (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	invite_code TEXT NOT NULL UNIQUE,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	created_by BIGINT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS challenge_problems (
	challenge_id BIGINT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	problem_id BIGINT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	points DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (challenge_id, problem_id)
);

CREATE TABLE IF NOT EXISTS challenge_participants (
	challenge_id BIGINT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (challenge_id, user_id)
);
`
