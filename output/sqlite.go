package output

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "github.com/mxk/go-sqlite/go1/sqlite3"
	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/consumer"
	"github.com/nlowe/bkarchive/frame"
	"github.com/nlowe/bkarchive/store"
)

var _ consumer.FrameConsumer = (*SQLite)(nil)

// SQLite replays Statement frames against a real database/sql connection,
// rebuilding the original relational schema and data, and delegates
// attachment/avatar/sticker/keyValue/preference bookkeeping to a BlobStore
// and a handful of side tables created by NewSQLite (those frame kinds carry
// data that was never itself a SQL statement).
type SQLite struct {
	db     *sql.DB
	blobs  *store.BlobStore
	dbPath string

	inMemory bool
}

// NewSQLite opens a SQLite database - in-memory unless inMemory is false, in
// which case it is created directly on disk at outputPath/database.sqlite -
// and prepares it for replaying a decoded backup.
func NewSQLite(outputPath string, inMemory bool, blobs *store.BlobStore) (*SQLite, error) {
	dbPath := filepath.Join(outputPath, "database.sqlite")
	dsn := dbPath
	if inMemory {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "output: open sqlite database")
	}

	s := &SQLite{db: db, blobs: blobs, dbPath: dbPath, inMemory: inMemory}
	if err := s.ensureBookkeeping(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureBookkeeping() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS key_value (
			key TEXT PRIMARY KEY, kind TEXT NOT NULL,
			blob_value BLOB, bool_value INTEGER, float_value REAL,
			int32_value INTEGER, int64_value INTEGER, string_value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS shared_preference (
			file TEXT, key TEXT, kind TEXT NOT NULL,
			string_value TEXT, bool_value INTEGER, int64_value INTEGER,
			float_value REAL, blob_value BLOB, string_set_json TEXT,
			PRIMARY KEY (file, key)
		)`,
		`CREATE TABLE IF NOT EXISTS attachment_blob (id INTEGER, row INTEGER, store_key TEXT, PRIMARY KEY (id, row))`,
		`CREATE TABLE IF NOT EXISTS avatar_blob (name TEXT PRIMARY KEY, store_key TEXT)`,
		`CREATE TABLE IF NOT EXISTS sticker_blob (row INTEGER PRIMARY KEY, store_key TEXT)`,
		`CREATE TABLE IF NOT EXISTS backup_version (version INTEGER)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "output: create bookkeeping tables")
		}
	}
	return nil
}

func bindArg(v frame.TypedValue) interface{} {
	switch v.Kind {
	case frame.ValueInt64:
		return v.Int64
	case frame.ValueFloat64:
		return v.Float64
	case frame.ValueString:
		return v.String
	case frame.ValueBytes:
		return v.Bytes
	default:
		return nil
	}
}

func (s *SQLite) OnStatement(st *frame.Statement) error {
	args := make([]interface{}, len(st.Params))
	for i, p := range st.Params {
		args[i] = bindArg(p)
	}
	if _, err := s.db.Exec(st.SQL, args...); err != nil {
		return errors.Wrapf(err, "output: replay statement %q", st.SQL)
	}
	return nil
}

func (s *SQLite) OnPreference(p *frame.Preference) error {
	v := p.Value
	var stringSetJSON interface{}
	if v.Kind == frame.PreferenceStringSet {
		b, err := json.Marshal(v.StringSet)
		if err != nil {
			return errors.Wrap(err, "output: marshal preference string set")
		}
		stringSetJSON = string(b)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO shared_preference
			(file, key, kind, string_value, bool_value, int64_value, float_value, blob_value, string_set_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.File, p.Key, kindName(v.Kind), v.String, v.Bool, v.Int64, v.Float32, v.Blob, stringSetJSON,
	)
	return errors.Wrap(err, "output: write preference")
}

func kindName(k frame.PreferenceValueKind) string {
	switch k {
	case frame.PreferenceString:
		return "string"
	case frame.PreferenceBool:
		return "bool"
	case frame.PreferenceInt64:
		return "int64"
	case frame.PreferenceFloat32:
		return "float32"
	case frame.PreferenceBlob:
		return "blob"
	case frame.PreferenceStringSet:
		return "stringSet"
	default:
		return "unknown"
	}
}

func (s *SQLite) OnKeyValue(kv *frame.KeyValue) error {
	kind := "null"
	switch {
	case kv.HasBlob:
		kind = "blob"
	case kv.HasBool:
		kind = "bool"
	case kv.HasFloat:
		kind = "float"
	case kv.HasInt32:
		kind = "int32"
	case kv.HasInt64:
		kind = "int64"
	case kv.HasString:
		kind = "string"
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO key_value
			(key, kind, blob_value, bool_value, float_value, int32_value, int64_value, string_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kv.Key, kind, kv.Blob, kv.Bool, kv.Float, kv.Int32, kv.Int64, kv.String,
	)
	return errors.Wrap(err, "output: write key/value")
}

func (s *SQLite) OnVersion(v *frame.Version) error {
	_, err := s.db.Exec(`INSERT INTO backup_version (version) VALUES (?)`, v.Version)
	return errors.Wrap(err, "output: write version")
}

func (s *SQLite) OnAttachment(a *frame.Attachment) error {
	key, err := s.blobs.Put("attachment", fmt.Sprintf("%d-%d", a.Row, a.ID), a.Body)
	if err != nil {
		return errors.Wrap(err, "output: store attachment blob")
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO attachment_blob (id, row, store_key) VALUES (?, ?, ?)`, a.ID, a.Row, key)
	return errors.Wrap(err, "output: record attachment")
}

func (s *SQLite) OnAvatar(a *frame.Avatar) error {
	key, err := s.blobs.Put("avatar", a.Name, a.Body)
	if err != nil {
		return errors.Wrap(err, "output: store avatar blob")
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO avatar_blob (name, store_key) VALUES (?, ?)`, a.Name, key)
	return errors.Wrap(err, "output: record avatar")
}

func (s *SQLite) OnSticker(a *frame.Sticker) error {
	key, err := s.blobs.Put("sticker", fmt.Sprintf("%d", a.Row), a.Body)
	if err != nil {
		return errors.Wrap(err, "output: store sticker blob")
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sticker_blob (row, store_key) VALUES (?, ?)`, a.Row, key)
	return errors.Wrap(err, "output: record sticker")
}

// OnEnd persists the database to disk when it was built in-memory, using the
// go-sqlite driver's online backup support so the file on disk is a proper
// SQLite database rather than a final in-memory snapshot dumped as bytes.
func (s *SQLite) OnEnd() error {
	if !s.inMemory {
		return nil
	}
	return s.backupToDisk()
}

// Close releases the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
