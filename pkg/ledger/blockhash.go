package ledger

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/code-payments/code-custody/pkg/solana"
)

// blockhashQueue holds the most recent blockhashes in production order along
// with the slot that produced each. It is not safe for concurrent use.
type blockhashQueue struct {
	capacity int
	hashes   *linkedhashmap.Map
	latest   solana.Blockhash
	slot     uint64
}

func newBlockhashQueue(capacity int, genesis solana.Blockhash) *blockhashQueue {
	if capacity < 1 {
		capacity = 1
	}

	q := &blockhashQueue{
		capacity: capacity,
		hashes:   linkedhashmap.New(),
	}
	q.push(genesis, 0)
	return q
}

// advance produces the blockhash for the next slot and returns that slot.
func (q *blockhashQueue) advance() uint64 {
	var slotBytes [8]byte
	binary.LittleEndian.PutUint64(slotBytes[:], q.slot+1)

	h := sha256.New()
	h.Write(q.latest[:])
	h.Write(slotBytes[:])

	var next solana.Blockhash
	copy(next[:], h.Sum(nil))

	q.push(next, q.slot+1)
	return q.slot
}

func (q *blockhashQueue) push(hash solana.Blockhash, slot uint64) {
	q.hashes.Put(hash, slot)
	q.latest = hash
	q.slot = slot

	for q.hashes.Size() > q.capacity {
		it := q.hashes.Iterator()
		if !it.First() {
			break
		}
		q.hashes.Remove(it.Key())
	}
}

func (q *blockhashQueue) contains(hash solana.Blockhash) bool {
	_, ok := q.hashes.Get(hash)
	return ok
}
