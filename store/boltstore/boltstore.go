// Package boltstore is the production implementation of store.Store,
// backed by go.etcd.io/bbolt. The bucket layout is adapted from
// channeldb/db.go's one-bucket-per-entity, big-endian-key convention:
// a top-level channels bucket keyed by channel id, a top-level tickets
// bucket keyed by (channel_id || epoch || index), and a meta bucket
// holding the domain separator and indexer snapshot.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/hoprnet/hopr-chain-core/store"
	"github.com/hoprnet/hopr-chain-core/types"
)

const dbFilePermission = 0600

var (
	channelsBucket = []byte("channels")
	ticketsBucket  = []byte("acknowledged-tickets")
	metaBucket     = []byte("meta")

	domainSeparatorKey = []byte("channels-domain-separator")
	snapshotKey        = []byte("indexer-snapshot")
)

// Store wraps a bbolt database file and implements store.Store. The
// single underlying *bbolt.DB already serializes writers (bbolt holds a
// single writer lock), matching spec §5's "DB is wrapped in a single
// reader-writer lock held at the process level" requirement without any
// extra locking in this package.
type Store struct {
	db *bbolt.DB
	// mu additionally serializes the read-count-then-write sequences
	// that PrepareAggregatableTickets and ticket-status transitions
	// perform, since bbolt's own lock is per-transaction, not across
	// the compound operations this package exposes as a single call.
	mu sync.Mutex
}

// Open opens (creating if necessary) a bbolt-backed store at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("boltstore: create dir: %w", err)
		}
	}

	db, err := bbolt.Open(dbPath, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.createBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{channelsBucket, ticketsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetChannel(_ context.Context, channelID types.Hash) (*types.ChannelEntry, error) {
	var entry *types.ChannelEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(channelsBucket).Get(channelID[:])
		if raw == nil {
			return nil
		}
		decoded, err := types.DecodeChannelEntry(raw)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})
	return entry, err
}

func (s *Store) GetChannelFrom(ctx context.Context, counterparty types.Address) (*types.ChannelEntry, error) {
	var found *types.ChannelEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelsBucket).ForEach(func(_, raw []byte) error {
			if found != nil {
				return nil
			}
			entry, err := types.DecodeChannelEntry(raw)
			if err != nil {
				return err
			}
			if entry.Source.Equal(counterparty) {
				found = entry
			}
			return nil
		})
	})
	return found, err
}

// GetIncomingChannels returns every stored channel. The Store holds no
// local node address, so the rows are not filtered by destination.
func (s *Store) GetIncomingChannels(context.Context) ([]types.ChannelEntry, error) {
	var channels []types.ChannelEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelsBucket).ForEach(func(_, raw []byte) error {
			entry, err := types.DecodeChannelEntry(raw)
			if err != nil {
				return err
			}
			channels = append(channels, *entry)
			return nil
		})
	})
	return channels, err
}

// GetAcknowledgedTickets returns tickets for a single channel (seeking
// directly to its key prefix), or for every channel when channelID is
// the zero hash.
func (s *Store) GetAcknowledgedTickets(_ context.Context, channelID types.Hash) ([]types.AcknowledgedTicket, error) {
	var tickets []types.AcknowledgedTicket
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(ticketsBucket).Cursor()

		if channelID.IsZero() {
			for k, v := c.First(); k != nil; k, v = c.Next() {
				ticket, err := types.DecodeAcknowledgedTicket(v)
				if err != nil {
					return err
				}
				tickets = append(tickets, *ticket)
			}
			return nil
		}

		prefix := channelID[:]
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			ticket, err := types.DecodeAcknowledgedTicket(v)
			if err != nil {
				return err
			}
			tickets = append(tickets, *ticket)
		}
		return nil
	})
	return tickets, err
}

func hasPrefix(k, prefix []byte) bool {
	return len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix)
}

func (s *Store) GetAcknowledgedTicketsRange(_ context.Context, channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error) {
	var tickets []types.AcknowledgedTicket
	err := s.db.View(func(tx *bbolt.Tx) error {
		return rangeTickets(tx, channelID, epoch, fromIdx, toIdx, func(_ []byte, t *types.AcknowledgedTicket) error {
			tickets = append(tickets, *t)
			return nil
		})
	})
	return tickets, err
}

// rangeTickets walks acknowledged-ticket rows for (channelID, epoch) in
// [fromIdx, toIdx] in ascending index order.
func rangeTickets(tx *bbolt.Tx, channelID types.Hash, epoch uint32, fromIdx, toIdx uint64, visit func(key []byte, t *types.AcknowledgedTicket) error) error {
	bucket := tx.Bucket(ticketsBucket)
	c := bucket.Cursor()
	lower := types.TicketKey(channelID, epoch, fromIdx)
	epochPrefix := lower[:types.HashLength+4]

	for k, v := c.Seek(lower); k != nil; k, v = c.Next() {
		if !hasPrefix(k, epochPrefix) {
			break
		}
		idx := binary.BigEndian.Uint64(k[types.HashLength+4:])
		if idx > toIdx {
			break
		}
		ticket, err := types.DecodeAcknowledgedTicket(v)
		if err != nil {
			return err
		}
		if err := visit(k, ticket); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateAcknowledgedTicket(_ context.Context, ticket *types.AcknowledgedTicket) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putTicket(tx, ticket)
	})
}

func putTicket(tx *bbolt.Tx, ticket *types.AcknowledgedTicket) error {
	channelID, epoch, index := ticket.Key()
	key := types.TicketKey(channelID, epoch, index)
	return tx.Bucket(ticketsBucket).Put(key, ticket.Encode())
}

func (s *Store) PrepareAggregatableTickets(_ context.Context, channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked []types.AcknowledgedTicket
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(ticketsBucket)
		var pending []struct {
			key    []byte
			ticket types.AcknowledgedTicket
		}
		err := rangeTickets(tx, channelID, epoch, fromIdx, toIdx, func(key []byte, t *types.AcknowledgedTicket) error {
			if t.Status != types.Untouched {
				return nil
			}
			keyCopy := append([]byte(nil), key...)
			pending = append(pending, struct {
				key    []byte
				ticket types.AcknowledgedTicket
			}{keyCopy, *t})
			return nil
		})
		if err != nil {
			return err
		}
		for _, p := range pending {
			p.ticket.Status = types.BeingAggregated
			if err := bucket.Put(p.key, p.ticket.Encode()); err != nil {
				return err
			}
			marked = append(marked, p.ticket)
		}
		return nil
	})
	return marked, err
}

func (s *Store) RollbackAggregationInChannel(_ context.Context, channelID types.Hash, epoch uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		var toUpdate []types.AcknowledgedTicket
		err := rangeTickets(tx, channelID, epoch, 0, ^uint64(0), func(_ []byte, t *types.AcknowledgedTicket) error {
			if t.Status == types.BeingAggregated {
				toUpdate = append(toUpdate, *t)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := range toUpdate {
			toUpdate[i].Status = types.Untouched
			if err := putTicket(tx, &toUpdate[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetChannelsDomainSeparator(context.Context) (*types.Hash, error) {
	var separator *types.Hash
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(domainSeparatorKey)
		if raw == nil {
			return nil
		}
		h, err := types.HashFromBytes(raw)
		if err != nil {
			return err
		}
		separator = &h
		return nil
	})
	return separator, err
}

// SetDomainSeparator stores the channels domain separator that
// GetChannelsDomainSeparator returns. It is the only writer of that
// value; UpdateChannelAndSnapshot stores only the channel row and the
// indexer snapshot.
func (s *Store) SetDomainSeparator(separator types.Hash) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(domainSeparatorKey, separator[:])
	})
}

func (s *Store) UpdateChannelAndSnapshot(_ context.Context, id types.Hash, channel *types.ChannelEntry, snapshot store.Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(channelsBucket).Put(id[:], channel.Encode()); err != nil {
			return err
		}
		return putSnapshot(tx, snapshot)
	})
}

func putSnapshot(tx *bbolt.Tx, snapshot store.Snapshot) error {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], snapshot.BlockNumber)
	binary.BigEndian.PutUint64(buf[8:16], snapshot.TransactionIndex)
	binary.BigEndian.PutUint64(buf[16:24], snapshot.LogIndex)
	return tx.Bucket(metaBucket).Put(snapshotKey, buf[:])
}

// GetSnapshot returns the last persisted indexer snapshot, or the zero
// value if none has been recorded yet.
func (s *Store) GetSnapshot(context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(snapshotKey)
		if raw == nil || len(raw) != 24 {
			return nil
		}
		snap.BlockNumber = binary.BigEndian.Uint64(raw[0:8])
		snap.TransactionIndex = binary.BigEndian.Uint64(raw[8:16])
		snap.LogIndex = binary.BigEndian.Uint64(raw[16:24])
		return nil
	})
	return snap, err
}

// BeginTransaction opens a single bbolt write transaction and exposes it
// through the store.Tx capability interface for the duration of fn.
func (s *Store) BeginTransaction(_ context.Context, fn func(store.Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) GetChannel(channelID types.Hash) (*types.ChannelEntry, error) {
	raw := t.tx.Bucket(channelsBucket).Get(channelID[:])
	if raw == nil {
		return nil, nil
	}
	return types.DecodeChannelEntry(raw)
}

func (t *boltTx) GetAcknowledgedTickets(channelID types.Hash) ([]types.AcknowledgedTicket, error) {
	var tickets []types.AcknowledgedTicket
	c := t.tx.Bucket(ticketsBucket).Cursor()
	prefix := channelID[:]
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		ticket, err := types.DecodeAcknowledgedTicket(v)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, nil
}

func (t *boltTx) GetAcknowledgedTicketsRange(channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error) {
	var tickets []types.AcknowledgedTicket
	err := rangeTickets(t.tx, channelID, epoch, fromIdx, toIdx, func(_ []byte, ticket *types.AcknowledgedTicket) error {
		tickets = append(tickets, *ticket)
		return nil
	})
	return tickets, err
}

func (t *boltTx) UpdateAcknowledgedTicket(ticket *types.AcknowledgedTicket) error {
	return putTicket(t.tx, ticket)
}

func (t *boltTx) PrepareAggregatableTickets(channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error) {
	var marked []types.AcknowledgedTicket
	var pending []types.AcknowledgedTicket
	err := rangeTickets(t.tx, channelID, epoch, fromIdx, toIdx, func(_ []byte, ticket *types.AcknowledgedTicket) error {
		if ticket.Status == types.Untouched {
			pending = append(pending, *ticket)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range pending {
		pending[i].Status = types.BeingAggregated
		if err := putTicket(t.tx, &pending[i]); err != nil {
			return nil, err
		}
		marked = append(marked, pending[i])
	}
	return marked, nil
}

func (t *boltTx) RollbackAggregationInChannel(channelID types.Hash, epoch uint32) error {
	var toUpdate []types.AcknowledgedTicket
	err := rangeTickets(t.tx, channelID, epoch, 0, ^uint64(0), func(_ []byte, ticket *types.AcknowledgedTicket) error {
		if ticket.Status == types.BeingAggregated {
			toUpdate = append(toUpdate, *ticket)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := range toUpdate {
		toUpdate[i].Status = types.Untouched
		if err := putTicket(t.tx, &toUpdate[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) UpdateChannelAndSnapshot(id types.Hash, channel *types.ChannelEntry, snapshot store.Snapshot) error {
	if err := t.tx.Bucket(channelsBucket).Put(id[:], channel.Encode()); err != nil {
		return err
	}
	return putSnapshot(t.tx, snapshot)
}

var _ store.Store = (*Store)(nil)
