package catalog

import "fmt"

// Backend is a persisted catalog: a JSON file held in memory, or an SQLite
// database queried in place. Index runs work on a Catalog and Commit it back.
type Backend struct {
	Path string

	mem *Catalog
	db  *SQLiteStore
}

// Open loads the catalog at path, choosing the format by extension.
func Open(path string) (*Backend, error) {
	b := &Backend{Path: path}
	if IsSQLitePath(path) {
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		b.db = db
		return b, nil
	}
	b.mem = New()
	if err := b.mem.Load(path); err != nil {
		return nil, err
	}
	return b, nil
}

// Store returns the read side used by request handlers.
func (b *Backend) Store() Store {
	if b.db != nil {
		return b.db
	}
	return b.mem
}

// Working returns a catalog to index into. For JSON it is the live catalog,
// so handlers see new streams as each account finishes.
func (b *Backend) Working() (*Catalog, error) {
	if b.db == nil {
		return b.mem, nil
	}
	snap, err := b.db.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", b.Path, err)
	}
	c := New()
	c.Replace(snap)
	return c, nil
}

// Commit persists c, which must come from Working.
func (b *Backend) Commit(c *Catalog) error {
	if b.db != nil {
		return b.db.Import(c.Snapshot())
	}
	return c.Save(b.Path)
}

// Close releases the database, if any.
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
