package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over a fixed set of stripes. Each stripe
// is placed on the ring replicas times to even out the key distribution.
type ring struct {
	points *treemap.Map

	// Value of the lowest point, for keys hashing past the last point.
	// treemap.Map.Min() is O(log n).
	first int
}

func newRing(stripes, replicas uint) *ring {
	points := treemap.NewWith(utils.Int64Comparator)

	stripeKey := make([]byte, 8)
	replica := make([]byte, 4)
	for stripe := 0; stripe < int(stripes); stripe++ {
		binary.LittleEndian.PutUint64(stripeKey, uint64(stripe))
		stripeHash, _ := murmur3.Sum128(stripeKey)
		binary.LittleEndian.PutUint64(stripeKey, stripeHash)

		for i := 0; i < int(replicas); i++ {
			binary.LittleEndian.PutUint32(replica, uint32(i))

			hasher := murmur3.New128()
			hasher.Write(stripeKey)
			hasher.Write(replica)
			point, _ := hasher.Sum128()
			points.Put(int64(point), stripe)
		}
	}

	r := &ring{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

// stripe maps key onto one of the ring's stripes.
func (r *ring) stripe(key []byte) int {
	raw, _ := murmur3.Sum128(key)
	if _, stripe := r.points.Ceiling(int64(raw)); stripe != nil {
		return stripe.(int)
	}
	return r.first
}
