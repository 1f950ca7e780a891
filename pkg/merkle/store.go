// Portable Merkle-authenticated key-value store.
//
// Every application write goes through a pending transaction buffer (Tx)
// that is either fully merged into the store's pending set or fully
// discarded, so a single deliver-tx can never leave partial state even
// though many envelopes share one block's pending buffer. Commit flushes
// the accumulated pending buffer to the underlying CometBFT-backed
// database and recomputes the root as a pure function of the sorted
// multiset of live (key, value) pairs — not of insertion order — by
// rebuilding the same from-scratch binary Merkle tree the teacher's batch
// anchoring code builds over a leaf set, only here the leaf set is every
// live key rather than one block's transaction batch.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

var ErrKeyNotFound = errors.New("merkle: key not found")

// metaRootKey stores the last committed root, namespaced away from any
// application key by a byte that the address/endpoint namespaces never use.
var metaRootKey = []byte("\x00meta:root")

var emptyRoot = sha256.Sum256([]byte("tokenledger:empty-store"))

type pendingEntry struct {
	deleted bool
	value   []byte
}

// Store is the authenticated, persistent key-value store described by
// spec §4.3. It is safe for concurrent readers; writers serialize through
// the single active Tx, matching the single-writer deliver-tx discipline
// of §5.
type Store struct {
	mu      sync.RWMutex
	db      dbm.DB
	pending map[string]*pendingEntry
	tree    *Tree
	root    []byte
}

// NewStore wraps db (typically a CometBFT-provided dbm.DB) as a Merkle
// store, restoring the last committed root if present.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db, pending: make(map[string]*pendingEntry)}
	root, err := db.Get(metaRootKey)
	if err != nil {
		return nil, err
	}
	if len(root) == 32 {
		s.root = root
	} else {
		s.root = append([]byte{}, emptyRoot[:]...)
	}
	return s, nil
}

// RootHash returns the root as of the last Commit.
func (s *Store) RootHash() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte{}, s.root...)
}

// Get reads key, observing this store's own pending buffer (used by the
// deliver pipeline so a later write in the same block sees an earlier
// uncommitted one).
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key []byte) ([]byte, error) {
	if p, ok := s.pending[string(key)]; ok {
		if p.deleted {
			return nil, nil
		}
		return append([]byte{}, p.value...), nil
	}
	v, err := s.db.Get(key)
	if err != nil || v == nil {
		return nil, err
	}
	return append([]byte{}, v...), nil
}

// KV is a single key/value pair, used by PrefixIterator results.
type KV struct {
	Key   []byte
	Value []byte
}

// PrefixIterator returns every live (key, value) pair under prefix, in
// ascending byte order, merging this store's pending buffer over the
// committed database.
func (s *Store) PrefixIterator(prefix []byte) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixIterLocked(prefix)
}

func (s *Store) prefixIterLocked(prefix []byte) ([]KV, error) {
	merged := make(map[string][]byte)

	end := prefixUpperBound(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return nil, err
	}
	for ; it.Valid(); it.Next() {
		k := append([]byte{}, it.Key()...)
		v := append([]byte{}, it.Value()...)
		merged[string(k)] = v
	}
	it.Close()

	for k, p := range s.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if p.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = p.value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, KV{Key: []byte(k), Value: merged[k]})
	}
	return out, nil
}

// prefixUpperBound returns the smallest key that is not prefixed by
// prefix, or nil if prefix is all 0xff bytes (meaning "to the end").
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Put queues a write directly against the store's shared pending buffer.
// Module code should prefer Begin()/Tx.Put so a failed operation rolls
// back cleanly; Put is used by genesis loading, where there is no
// enclosing envelope to roll back.
func (s *Store) Put(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[string(key)] = &pendingEntry{value: append([]byte{}, value...)}
}

// Delete queues a deletion directly against the shared pending buffer.
func (s *Store) Delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[string(key)] = &pendingEntry{deleted: true}
}

// Commit flushes the pending buffer to the underlying database and
// recomputes the Merkle root, returning it as the new app-hash.
func (s *Store) Commit() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	for k, p := range s.pending {
		if p.deleted {
			if err := batch.Delete([]byte(k)); err != nil {
				return nil, err
			}
			continue
		}
		if err := batch.Set([]byte(k), p.value); err != nil {
			return nil, err
		}
	}
	if err := batch.WriteSync(); err != nil {
		return nil, err
	}
	s.pending = make(map[string]*pendingEntry)

	root, tree, err := s.rebuildTree()
	if err != nil {
		return nil, err
	}
	s.tree = tree
	s.root = root
	if err := s.db.SetSync(metaRootKey, root); err != nil {
		return nil, err
	}
	return append([]byte{}, root...), nil
}

// rebuildTree recomputes the full Merkle tree from every live key in the
// committed database, in sorted order, and returns (root, tree). Must be
// called with s.mu held.
func (s *Store) rebuildTree() ([]byte, *Tree, error) {
	it, err := s.db.Iterator(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	var leaves [][]byte
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if bytes.Equal(k, metaRootKey) {
			continue
		}
		leaves = append(leaves, leafHash(k, it.Value()))
	}
	it.Close()

	if len(leaves) == 0 {
		return append([]byte{}, emptyRoot[:]...), nil, nil
	}

	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i], leaves[j]) < 0 })
	tree, err := BuildTree(leaves)
	if err != nil {
		return nil, nil, err
	}
	return tree.Root(), tree, nil
}

func leafHash(key, value []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write([]byte{0})
	h.Write(value)
	sum := h.Sum(nil)
	return sum
}

// Prove returns an inclusion proof for key's current committed value.
func (s *Store) Prove(key []byte) (*InclusionProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tree == nil {
		return nil, ErrKeyNotFound
	}
	v, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrKeyNotFound
	}
	return s.tree.GenerateProofByHash(leafHash(key, v))
}

// Snapshot is a read-only view of committed state, bypassing the
// pending buffer entirely. query() and check-tx read through a Snapshot
// so they never observe uncommitted writes (spec §4.8).
type Snapshot struct {
	db   dbm.DB
	root []byte
}

// Snapshot captures the store's committed root. Its reads go to the
// underlying database at call time and never consult the pending buffer.
// The view is not frozen: after a later Commit, Get and PrefixIterator
// return the newly committed values while RootHash still reports the
// root captured here.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{db: s.db, root: append([]byte{}, s.root...)}
}

func (sn *Snapshot) RootHash() []byte { return append([]byte{}, sn.root...) }

func (sn *Snapshot) Get(key []byte) ([]byte, error) {
	v, err := sn.db.Get(key)
	if err != nil || v == nil {
		return nil, err
	}
	return append([]byte{}, v...), nil
}

func (sn *Snapshot) PrefixIterator(prefix []byte) ([]KV, error) {
	end := prefixUpperBound(prefix)
	it, err := sn.db.Iterator(prefix, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []KV
	for ; it.Valid(); it.Next() {
		out = append(out, KV{Key: append([]byte{}, it.Key()...), Value: append([]byte{}, it.Value()...)})
	}
	return out, nil
}

// Put exists only so *Snapshot satisfies the module packages' KV interface,
// letting query-path code construct a ledger/accounts/kvstore Module over a
// snapshot without a parallel read-only Module type. It must never be
// called: query() and check-tx never mutate committed state (spec §4.8).
func (sn *Snapshot) Put(key, value []byte) {
	panic("merkle: write attempted on a read-only snapshot")
}

// Tx is a per-envelope pending-write scope: writes accumulate in a local
// copy of the store's pending buffer and are merged back atomically on
// Commit, or thrown away on Rollback, so one failed envelope never
// corrupts another envelope's writes within the same block.
type Tx struct {
	store *Store
	local map[string]*pendingEntry
}

// Begin opens a transaction seeded from the store's current pending
// buffer (so writes already queued earlier in the same block are visible).
func (s *Store) Begin() *Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	local := make(map[string]*pendingEntry, len(s.pending))
	for k, v := range s.pending {
		local[k] = v
	}
	return &Tx{store: s, local: local}
}

func (t *Tx) Get(key []byte) ([]byte, error) {
	if p, ok := t.local[string(key)]; ok {
		if p.deleted {
			return nil, nil
		}
		return append([]byte{}, p.value...), nil
	}
	v, err := t.store.db.Get(key)
	if err != nil || v == nil {
		return nil, err
	}
	return append([]byte{}, v...), nil
}

func (t *Tx) Put(key, value []byte) {
	t.local[string(key)] = &pendingEntry{value: append([]byte{}, value...)}
}

func (t *Tx) Delete(key []byte) {
	t.local[string(key)] = &pendingEntry{deleted: true}
}

func (t *Tx) PrefixIterator(prefix []byte) ([]KV, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	real := t.store.pending
	t.store.pending = t.local
	out, err := t.store.prefixIterLocked(prefix)
	t.store.pending = real
	return out, err
}

// Commit merges this transaction's writes into the store's pending buffer.
func (t *Tx) Commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.pending = t.local
}

// Rollback discards this transaction's writes; the store's pending buffer
// is left exactly as it was when Begin was called.
func (t *Tx) Rollback() {
	t.local = nil
}
