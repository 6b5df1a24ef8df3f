package partition

import "github.com/spaolacci/murmur3"

// Count is the fixed number of logical shards used to spread partition keys
// across build workers. Never changes after initial deployment — it's a
// capacity decision, not a scaling decision.
const Count = 256

// For returns the shard for a (user, product) partition key. Stable and
// deterministic: the same key always maps to the same shard, so work
// assignment never depends on map iteration or scheduling order.
func For(key string) int {
	return int(murmur3.Sum32([]byte(key)) % Count)
}
