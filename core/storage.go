package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store persists per-node chains and per-round ledger snapshots in LevelDB.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens a LevelDB database at path. An empty path opens an in-memory store.
func OpenStore(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// chainPrefix hex-encodes the id so that no id is a key prefix of another.
func chainPrefix(nodeID string) string {
	return fmt.Sprintf("chain:%x:", nodeID)
}

func chainKey(nodeID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%010d", chainPrefix(nodeID), index))
}

func ledgerKey(round uint64) []byte {
	return []byte(fmt.Sprintf("ledger:%020d", round))
}

// SaveChain writes the blocks of a node's chain. Blocks already stored at the same
// positions are overwritten with identical content, since chains only grow.
func (s *Store) SaveChain(nodeID string, blocks []Block) error {
	batch := new(leveldb.Batch)
	for i, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal block: %v", err)
		}
		batch.Put(chainKey(nodeID, i), data)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to store chain: %v", err)
	}
	return nil
}

// LoadChain reads a node's chain in order.
func (s *Store) LoadChain(nodeID string) ([]Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(chainPrefix(nodeID))), nil)
	defer iter.Release()

	var blocks []Block
	for iter.Next() {
		var b Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block %s: %v", iter.Key(), err)
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return blocks, nil
}

// SaveLedger stores the ledger entries as they stood after round.
func (s *Store) SaveLedger(round uint64, entries []LedgerEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %v", err)
	}
	if err := s.db.Put(ledgerKey(round), data, nil); err != nil {
		return fmt.Errorf("failed to store ledger: %v", err)
	}
	return nil
}

// LoadLedger reads the ledger snapshot stored for round.
func (s *Store) LoadLedger(round uint64) ([]LedgerEntry, error) {
	data, err := s.db.Get(ledgerKey(round), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("no ledger for round %d", round)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %v", err)
	}
	var entries []LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %v", err)
	}
	return entries, nil
}

// LatestRound returns the highest round with a stored ledger snapshot.
func (s *Store) LatestRound() (uint64, bool, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte("ledger:")), nil)
	defer iter.Release()
	if !iter.Last() {
		return 0, false, iter.Error()
	}
	round, err := strconv.ParseUint(strings.TrimPrefix(string(iter.Key()), "ledger:"), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed ledger key %q: %v", iter.Key(), err)
	}
	return round, true, nil
}
