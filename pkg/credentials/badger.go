package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// Key layout: token:{value} -> CBOR(Token)
const prefixToken = "token:"

// entryGrace pads badger's own TTL, which has one-second resolution, so the
// exchange's expiry check always runs first.
const entryGrace = 2 * time.Second

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano // expiry needs sub-second precision
	if encMode, err = opts.EncMode(); err != nil {
		panic("credentials: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("credentials: CBOR decoder initialization failed: " + err.Error())
	}
}

// BadgerStore persists tokens in BadgerDB so handoffs survive a restart.
type BadgerStore struct {
	db *badgerdb.DB
}

// OpenBadgerStore opens (or creates) a store at path. An empty path keeps
// the database in memory.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("credentials: open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func tokenKey(value string) []byte {
	return []byte(prefixToken + value)
}

func (s *BadgerStore) Put(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encMode.Marshal(t)
	if err != nil {
		return fmt.Errorf("credentials: encode token: %w", err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		key := tokenKey(t.Value)
		if _, err := txn.Get(key); err == nil {
			return ErrTokenExists
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		e := badgerdb.NewEntry(key, data)
		if ttl := time.Until(t.ExpiresAt); ttl > 0 {
			e = e.WithTTL(ttl + entryGrace)
		}
		return txn.SetEntry(e)
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		return ErrTokenExists
	}
	return err
}

func (s *BadgerStore) Take(ctx context.Context, value string) (Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, false, err
	}

	var t Token
	found := false
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		key := tokenKey(value)
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return decMode.Unmarshal(val, &t)
		}); err != nil {
			return fmt.Errorf("credentials: decode token: %w", err)
		}
		found = true
		return txn.Delete(key)
	})

	// A conflict means a concurrent Take removed the same key first.
	if errors.Is(err, badgerdb.ErrConflict) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	return t, found, nil
}

func (s *BadgerStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte

	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixToken)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var t Token
			if err := item.Value(func(val []byte) error {
				return decMode.Unmarshal(val, &t)
			}); err != nil || t.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range expired {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (s *BadgerStore) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixToken)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return ctx.Err()
	})
	return n, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
