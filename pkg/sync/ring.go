package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring mapping keys onto a fixed number of
// partitions.
type ring struct {
	hashRing *treemap.Map

	// minPartition caches the partition of the lowest ring entry, since
	// treemap.Map.Min() is O(log n).
	minPartition int
}

// newRing returns a hash ring over partitions [0, partitions), with each
// partition appearing replicationFactor times.
func newRing(partitions int, replicationFactor uint) *ring {
	hashRing := treemap.NewWith(utils.Int64Comparator)
	for p := 0; p < partitions; p++ {
		keyHash, _ := murmur3.Sum128([]byte(fmt.Sprintf("partition%d", p)))
		keyHashBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(keyHashBytes, keyHash)

		indexBytes := make([]byte, 4)
		for i := 0; i < int(replicationFactor); i++ {
			hasher := murmur3.New128()
			hasher.Write(keyHashBytes)
			binary.LittleEndian.PutUint32(indexBytes, uint32(i))
			hasher.Write(indexBytes)
			hash, _ := hasher.Sum128()
			hashRing.Put(int64(hash), p)
		}
	}

	r := &ring{hashRing: hashRing}
	if _, minPartition := hashRing.Min(); minPartition != nil {
		r.minPartition = minPartition.(int)
	}
	return r
}

// partition consistently hashes the key to one of the ring's partitions.
func (r *ring) partition(key []byte) int {
	raw, _ := murmur3.Sum128(key)
	_, p := r.hashRing.Ceiling(int64(raw))
	if p != nil {
		return p.(int)
	}
	return r.minPartition
}
