package keyval

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerConfig configures the on-disk store.
type BadgerConfig struct {
	Path   string
	Logger *logrus.Logger
}

// BadgerStore is a badger-backed Store.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Logger
}

// NewBadgerStore opens (or creates) the store at the configured path.
func NewBadgerStore(config BadgerConfig) (*BadgerStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" {
		return nil, errors.New("no path provided in configuration")
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening key-value store: %w", err)
	}

	config.Logger.WithFields(logrus.Fields{
		"path": config.Path,
	}).Info("key-value store opened")

	return &BadgerStore{db: db, log: config.Logger}, nil
}

func (s *BadgerStore) Put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) List(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key())] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	s.log.Info("closing key-value store")
	return s.db.Close()
}
