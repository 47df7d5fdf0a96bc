package catalog

import (
	"sort"
	"strings"
	"time"
)

// Store is the read side of the catalog used by the XC host and the
// catch-up gateway. Lookups that match nothing return ErrNotFound. Slice
// results are ordered deterministically: channels by guide number then ID,
// streams by ID unless stated otherwise.
type Store interface {
	Channels() ([]Channel, error)
	Channel(id int64) (Channel, error)
	Stream(id int64) (Stream, error)
	// ChannelStreams returns the channel's streams in channel order.
	ChannelStreams(channelID int64) ([]Stream, error)
	// StreamChannels returns every channel that carries the stream.
	StreamChannels(streamID int64) ([]Channel, error)
	StreamsByAccountType(t AccountType) ([]Stream, error)
	Account(id int64) (Account, error)
	User(username string) (User, error)
	// Programmes returns entries for epgChannelID overlapping [from, to).
	Programmes(epgChannelID string, from, to time.Time) ([]Programme, error)
}

var _ Store = (*Catalog)(nil)

func sortChannels(chs []Channel) {
	sort.SliceStable(chs, func(i, j int) bool {
		if chs[i].Number != chs[j].Number {
			return chs[i].Number < chs[j].Number
		}
		return chs[i].ID < chs[j].ID
	})
}

// Channels implements Store.
func (c *Catalog) Channels() ([]Channel, error) {
	c.mu.RLock()
	out := append([]Channel(nil), c.channels...)
	c.mu.RUnlock()
	sortChannels(out)
	return out, nil
}

// Channel implements Store.
func (c *Catalog) Channel(id int64) (Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.channels {
		if ch.ID == id {
			return ch, nil
		}
	}
	return Channel{}, ErrNotFound
}

// Stream implements Store.
func (c *Catalog) Stream(id int64) (Stream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamLocked(id)
}

func (c *Catalog) streamLocked(id int64) (Stream, error) {
	for _, s := range c.streams {
		if s.ID == id {
			return s, nil
		}
	}
	return Stream{}, ErrNotFound
}

// ChannelStreams implements Store.
func (c *Catalog) ChannelStreams(channelID int64) ([]Stream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.channels {
		if ch.ID != channelID {
			continue
		}
		out := make([]Stream, 0, len(ch.StreamIDs))
		for _, id := range ch.StreamIDs {
			if s, err := c.streamLocked(id); err == nil {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return nil, ErrNotFound
}

// StreamChannels implements Store.
func (c *Catalog) StreamChannels(streamID int64) ([]Channel, error) {
	c.mu.RLock()
	var out []Channel
	for _, ch := range c.channels {
		for _, id := range ch.StreamIDs {
			if id == streamID {
				out = append(out, ch)
				break
			}
		}
	}
	c.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StreamsByAccountType implements Store.
func (c *Catalog) StreamsByAccountType(t AccountType) ([]Stream, error) {
	c.mu.RLock()
	types := make(map[int64]AccountType, len(c.accounts))
	for _, a := range c.accounts {
		types[a.ID] = a.Type
	}
	var out []Stream
	for _, s := range c.streams {
		if types[s.AccountID] == t {
			out = append(out, s)
		}
	}
	c.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Account implements Store.
func (c *Catalog) Account(id int64) (Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

// User implements Store.
func (c *Catalog) User(username string) (User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// Programmes implements Store.
func (c *Catalog) Programmes(epgChannelID string, from, to time.Time) ([]Programme, error) {
	epgChannelID = strings.TrimSpace(epgChannelID)
	if epgChannelID == "" {
		return nil, nil
	}
	c.mu.RLock()
	var out []Programme
	for _, p := range c.programmes {
		if p.EPGChannelID != epgChannelID {
			continue
		}
		if p.Stop.After(from) && p.Start.Before(to) {
			out = append(out, p)
		}
	}
	c.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
