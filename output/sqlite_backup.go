package output

import (
	"context"

	"github.com/mxk/go-sqlite/go1/sqlite3"
	"github.com/pkg/errors"
)

// backupToDisk copies the in-memory database to dbPath using sqlite's online
// backup API, so the file left on disk is a normal, directly-openable SQLite
// database rather than something this program had to serialize itself.
//
// database/sql doesn't expose the underlying driver connection, so this digs
// one down via Conn.Raw to reach the *sqlite3.Conn the mxk/go-sqlite driver
// wraps around a C sqlite3* handle, then drives sqlite3.Conn.Backup directly.
func (s *SQLite) backupToDisk() error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return errors.Wrap(err, "output: acquire connection for backup")
	}
	defer conn.Close()

	dst, err := sqlite3.Open(s.dbPath)
	if err != nil {
		return errors.Wrap(err, "output: open destination database")
	}
	defer dst.Close()

	err = conn.Raw(func(raw interface{}) error {
		src, ok := raw.(*sqlite3.Conn)
		if !ok {
			return errors.New("output: unexpected sqlite driver connection type")
		}

		b, err := src.Backup("main", dst, "main")
		if err != nil {
			return errors.Wrap(err, "output: start backup")
		}
		defer b.Close()

		for {
			done, err := b.Step(-1)
			if err != nil {
				return errors.Wrap(err, "output: backup step")
			}
			if done {
				return nil
			}
		}
	})

	return errors.Wrap(err, "output: backup in-memory database to disk")
}
