package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// IsSQLitePath reports whether path names an SQLite catalog rather than JSON.
func IsSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	account_type TEXT NOT NULL DEFAULT 'XC',
	server_url TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	m3u_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	xc_password TEXT NOT NULL DEFAULT '',
	user_level INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS streams (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	account_id INTEGER NOT NULL DEFAULT 0,
	tvg_id TEXT NOT NULL DEFAULT '',
	logo TEXT NOT NULL DEFAULT '',
	grp TEXT NOT NULL DEFAULT '',
	custom_properties TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	number REAL NOT NULL DEFAULT 0,
	epg_channel_id TEXT NOT NULL DEFAULT '',
	user_level INTEGER NOT NULL DEFAULT 0,
	logo TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS channel_streams (
	channel_id INTEGER NOT NULL,
	stream_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (channel_id, stream_id)
);
CREATE TABLE IF NOT EXISTS programmes (
	epg_channel_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	start INTEGER NOT NULL,
	stop INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS programmes_by_channel ON programmes (epg_channel_id, start);
`

// SQLiteStore serves the catalog from an SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the catalog database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("catalog sqlite open: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Import replaces every table with the contents of snap in one transaction.
func (s *SQLiteStore) Import(snap Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, table := range []string{"accounts", "users", "streams", "channels", "channel_streams", "programmes"} {
		if _, err = tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("catalog sqlite clear %s: %w", table, err)
		}
	}
	for _, a := range snap.Accounts {
		if _, err = tx.Exec(`INSERT INTO accounts (id, name, account_type, server_url, username, password, user_agent, m3u_url) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, string(a.Type), a.ServerURL, a.Username, a.Password, a.UserAgent, a.M3UURL); err != nil {
			return fmt.Errorf("catalog sqlite account %d: %w", a.ID, err)
		}
	}
	for _, u := range snap.Users {
		if _, err = tx.Exec(`INSERT INTO users (username, xc_password, user_level) VALUES (?, ?, ?)`,
			u.Username, u.XCPassword, u.UserLevel); err != nil {
			return fmt.Errorf("catalog sqlite user %q: %w", u.Username, err)
		}
	}
	for _, st := range snap.Streams {
		props := []byte("{}")
		if len(st.Properties) > 0 {
			if props, err = json.Marshal(st.Properties); err != nil {
				return fmt.Errorf("catalog sqlite stream %d properties: %w", st.ID, err)
			}
		}
		if _, err = tx.Exec(`INSERT INTO streams (id, name, url, account_id, tvg_id, logo, grp, custom_properties) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID, st.Name, st.URL, st.AccountID, st.TVGID, st.Logo, st.Group, string(props)); err != nil {
			return fmt.Errorf("catalog sqlite stream %d: %w", st.ID, err)
		}
	}
	for _, ch := range snap.Channels {
		if _, err = tx.Exec(`INSERT INTO channels (id, name, number, epg_channel_id, user_level, logo, category_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ch.ID, ch.Name, ch.Number, ch.EPGChannelID, ch.UserLevel, ch.Logo, ch.CategoryID); err != nil {
			return fmt.Errorf("catalog sqlite channel %d: %w", ch.ID, err)
		}
		for pos, sid := range ch.StreamIDs {
			if _, err = tx.Exec(`INSERT INTO channel_streams (channel_id, stream_id, position) VALUES (?, ?, ?)`, ch.ID, sid, pos); err != nil {
				return fmt.Errorf("catalog sqlite channel %d stream %d: %w", ch.ID, sid, err)
			}
		}
	}
	for _, p := range snap.Programmes {
		if _, err = tx.Exec(`INSERT INTO programmes (epg_channel_id, title, description, start, stop) VALUES (?, ?, ?, ?, ?)`,
			p.EPGChannelID, p.Title, p.Description, p.Start.Unix(), p.Stop.Unix()); err != nil {
			return fmt.Errorf("catalog sqlite programme: %w", err)
		}
	}
	return tx.Commit()
}

// Snapshot reads the whole database into memory.
func (s *SQLiteStore) Snapshot() (Snapshot, error) {
	var snap Snapshot
	rows, err := s.db.Query(`SELECT id, name, account_type, server_url, username, password, user_agent, m3u_url FROM accounts ORDER BY id`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return snap, err
		}
		snap.Accounts = append(snap.Accounts, a)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT username, xc_password, user_level FROM users ORDER BY username`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.XCPassword, &u.UserLevel); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Users = append(snap.Users, u)
	}
	rows.Close()

	if snap.Streams, err = s.queryStreams(`SELECT id, name, url, account_id, tvg_id, logo, grp, custom_properties FROM streams ORDER BY id`); err != nil {
		return snap, err
	}
	if snap.Channels, err = s.Channels(); err != nil {
		return snap, err
	}
	snap.Programmes, err = s.queryProgrammes(`SELECT epg_channel_id, title, description, start, stop FROM programmes ORDER BY epg_channel_id, start`)
	return snap, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var typ string
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.ServerURL, &a.Username, &a.Password, &a.UserAgent, &a.M3UURL); err != nil {
		return Account{}, err
	}
	a.Type = AccountType(typ)
	return a, nil
}

func scanStream(row scanner) (Stream, error) {
	var st Stream
	var props string
	if err := row.Scan(&st.ID, &st.Name, &st.URL, &st.AccountID, &st.TVGID, &st.Logo, &st.Group, &props); err != nil {
		return Stream{}, err
	}
	if props != "" && props != "{}" {
		if err := json.Unmarshal([]byte(props), &st.Properties); err != nil {
			return Stream{}, fmt.Errorf("stream %d custom_properties: %w", st.ID, err)
		}
	}
	return st, nil
}

func (s *SQLiteStore) queryStreams(query string, args ...any) ([]Stream, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryProgrammes(query string, args ...any) ([]Programme, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Programme
	for rows.Next() {
		var p Programme
		var start, stop int64
		if err := rows.Scan(&p.EPGChannelID, &p.Title, &p.Description, &start, &stop); err != nil {
			return nil, err
		}
		p.Start = time.Unix(start, 0).UTC()
		p.Stop = time.Unix(stop, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// channelStreamIDs loads the ordered stream ids for every channel.
func (s *SQLiteStore) channelStreamIDs() (map[int64][]int64, error) {
	rows, err := s.db.Query(`SELECT channel_id, stream_id FROM channel_streams ORDER BY channel_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64][]int64{}
	for rows.Next() {
		var cid, sid int64
		if err := rows.Scan(&cid, &sid); err != nil {
			return nil, err
		}
		out[cid] = append(out[cid], sid)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryChannels(query string, args ...any) ([]Channel, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Number, &ch.EPGChannelID, &ch.UserLevel, &ch.Logo, &ch.CategoryID); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ids, err := s.channelStreamIDs()
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].StreamIDs = ids[out[i].ID]
	}
	return out, nil
}

const channelColumns = `c.id, c.name, c.number, c.epg_channel_id, c.user_level, c.logo, c.category_id`

// Channels implements Store.
func (s *SQLiteStore) Channels() ([]Channel, error) {
	return s.queryChannels(`SELECT ` + channelColumns + ` FROM channels c ORDER BY c.number, c.id`)
}

// Channel implements Store.
func (s *SQLiteStore) Channel(id int64) (Channel, error) {
	out, err := s.queryChannels(`SELECT `+channelColumns+` FROM channels c WHERE c.id = ?`, id)
	if err != nil {
		return Channel{}, err
	}
	if len(out) == 0 {
		return Channel{}, ErrNotFound
	}
	return out[0], nil
}

// Stream implements Store.
func (s *SQLiteStore) Stream(id int64) (Stream, error) {
	st, err := scanStream(s.db.QueryRow(`SELECT id, name, url, account_id, tvg_id, logo, grp, custom_properties FROM streams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Stream{}, ErrNotFound
	}
	return st, err
}

// ChannelStreams implements Store.
func (s *SQLiteStore) ChannelStreams(channelID int64) ([]Stream, error) {
	if _, err := s.Channel(channelID); err != nil {
		return nil, err
	}
	return s.queryStreams(`SELECT s.id, s.name, s.url, s.account_id, s.tvg_id, s.logo, s.grp, s.custom_properties
		FROM channel_streams cs JOIN streams s ON s.id = cs.stream_id
		WHERE cs.channel_id = ? ORDER BY cs.position`, channelID)
}

// StreamChannels implements Store.
func (s *SQLiteStore) StreamChannels(streamID int64) ([]Channel, error) {
	return s.queryChannels(`SELECT `+channelColumns+` FROM channels c
		JOIN channel_streams cs ON cs.channel_id = c.id
		WHERE cs.stream_id = ? ORDER BY c.id`, streamID)
}

// StreamsByAccountType implements Store.
func (s *SQLiteStore) StreamsByAccountType(t AccountType) ([]Stream, error) {
	return s.queryStreams(`SELECT s.id, s.name, s.url, s.account_id, s.tvg_id, s.logo, s.grp, s.custom_properties
		FROM streams s JOIN accounts a ON a.id = s.account_id
		WHERE a.account_type = ? ORDER BY s.id`, string(t))
}

// Account implements Store.
func (s *SQLiteStore) Account(id int64) (Account, error) {
	a, err := scanAccount(s.db.QueryRow(`SELECT id, name, account_type, server_url, username, password, user_agent, m3u_url FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// User implements Store.
func (s *SQLiteStore) User(username string) (User, error) {
	var u User
	err := s.db.QueryRow(`SELECT username, xc_password, user_level FROM users WHERE username = ?`, username).
		Scan(&u.Username, &u.XCPassword, &u.UserLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// Programmes implements Store.
func (s *SQLiteStore) Programmes(epgChannelID string, from, to time.Time) ([]Programme, error) {
	epgChannelID = strings.TrimSpace(epgChannelID)
	if epgChannelID == "" {
		return nil, nil
	}
	return s.queryProgrammes(`SELECT epg_channel_id, title, description, start, stop FROM programmes
		WHERE epg_channel_id = ? AND stop > ? AND start < ? ORDER BY start`, epgChannelID, from.Unix(), to.Unix())
}
