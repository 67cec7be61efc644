package batch_writer

import (
	"github.com/kinarch/kinarch/types"
)

// Item is one admitted entry queued for writing, tagged with the position of
// its originating record so outcomes can be reported in input order.
type Item struct {
	// Position is the index of the originating raw record within the batch
	Position int
	// Key is the full per-entry object key
	Key string
	// BucketPrefix is the key prefix shared by all entries of the same type
	// and time bucket
	BucketPrefix string
	// Entry is the decoded payload to serialize
	Entry types.LogEntry
}

// Group is a set of items sharing a bucket prefix, written as one storage
// object. The object key is the first item's key: for a re-delivered batch
// the first item is the same, so the group lands on the same key and
// overwrites instead of duplicating.
type Group struct {
	Key   string
	Items []Item
}

// Positions returns the originating record positions of every item in the
// group.
func (g *Group) Positions() []int {
	positions := make([]int, len(g.Items))
	for i, item := range g.Items {
		positions[i] = item.Position
	}
	return positions
}

// BuildGroups buckets items by their shared key prefix, preserving
// first-seen order. Grouping minimizes the number of storage operations per
// invocation: one write per (type, time bucket) rather than one per entry.
func BuildGroups(items []Item) []*Group {
	var groups []*Group
	index := make(map[string]*Group)

	for _, item := range items {
		g, ok := index[item.BucketPrefix]
		if !ok {
			g = &Group{Key: item.Key}
			index[item.BucketPrefix] = g
			groups = append(groups, g)
		}
		g.Items = append(g.Items, item)
	}

	return groups
}
