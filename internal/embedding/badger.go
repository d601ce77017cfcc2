package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"
)

const badgerKeyPrefix = "emb:"

// BadgerStore persists embeddings in a local badger database.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l badgerLogger) Errorf(msg string, args ...interface{})   { l.logger.Errorf(msg, args...) }
func (l badgerLogger) Warningf(msg string, args ...interface{}) { l.logger.Warnf(msg, args...) }
func (l badgerLogger) Infof(msg string, args ...interface{})    { l.logger.Debugf(msg, args...) }
func (l badgerLogger) Debugf(msg string, args ...interface{})   { l.logger.Debugf(msg, args...) }

// OpenBadgerStore opens (or creates) a store at dir. An empty dir opens an
// in-memory store.
func OpenBadgerStore(dir string, ttl time.Duration, logger *zap.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLogger{logger: logger.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding store: %w", err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

// Get returns the stored vector for key.
func (s *BadgerStore) Get(key string) ([]float32, bool, error) {
	var vec []float32
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := decodeVector(val)
			vec = v
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vector under key, expiring after the store TTL when positive.
func (s *BadgerStore) Set(key string, vector []float32) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(badgerKeyPrefix+key), encodeVector(vector))
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached embedding: len=%d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
