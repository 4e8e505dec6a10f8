package subgraph

import (
	"sort"
)

const (
	// allocationAlignment is the byte alignment of every planned offset.
	allocationAlignment = 64
	// extraBytes pads every record so kernels may read past the end of a tensor.
	extraBytes = 16
)

// UsageRecord is the liveness and placement of one intermediate value.
// First and Last are node indices in execution order.
type UsageRecord struct {
	ValueID uint32
	First   int
	Last    int
	Size    int
	Offset  int
}

func (r *UsageRecord) overlapsInTime(o *UsageRecord) bool {
	return r.First <= o.Last && o.First <= r.Last
}

func (r *UsageRecord) overlapsInSpace(o *UsageRecord) bool {
	return r.Offset < o.Offset+o.Size && o.Offset < r.Offset+r.Size
}

// Plan assigns arena offsets to intermediate values.
type Plan struct {
	Records []UsageRecord
	Total   int // arena bytes
	Sum     int // bytes needed without any reuse
}

// Record returns the record for value id.
func (p *Plan) Record(id uint32) (UsageRecord, bool) {
	for _, r := range p.Records {
		if r.ValueID == id {
			return r, true
		}
	}
	return UsageRecord{}, false
}

func alignedSize(n int) int {
	n += extraBytes
	return (n + allocationAlignment - 1) &^ (allocationAlignment - 1)
}

// usageRecords walks nodes in order and returns one record per intermediate
// value, ordered by First. sizeOf returns a value's unpadded byte size.
func usageRecords(nodes []Node, values []Value, sizeOf func(id uint32) int) []UsageRecord {
	index := make(map[uint32]int)
	var records []UsageRecord
	for i := range nodes {
		n := &nodes[i]
		for _, id := range n.Inputs {
			if at, ok := index[id]; ok {
				records[at].Last = i
			}
		}
		for _, id := range n.Outputs {
			if !values[id].IsIntermediate() {
				continue
			}
			if at, ok := index[id]; ok {
				records[at].Last = i
				continue
			}
			index[id] = len(records)
			records = append(records, UsageRecord{
				ValueID: id,
				First:   i,
				Last:    i,
				Size:    alignedSize(sizeOf(id)),
			})
		}
	}
	return records
}

// rank orders records for placement: larger first, then longer lived, then
// earlier defined.
func rank(records []UsageRecord, i1, i2 int) bool {
	r1, r2 := &records[i1], &records[i2]
	if r1.Size != r2.Size {
		return r1.Size > r2.Size
	}
	d1, d2 := r1.Last-r1.First, r2.Last-r2.First
	if d1 != d2 {
		return d1 > d2
	}
	return i1 < i2
}

// guides returns, for each record, the records whose lifetimes intersect it
// and that are placed before it.
func guides(records []UsageRecord) [][]int {
	g := make([][]int, len(records))
	for i1 := range records {
		last := records[i1].Last
		for i2 := i1 + 1; i2 < len(records); i2++ {
			if last < records[i2].First {
				break
			}
			if rank(records, i1, i2) {
				g[i2] = append(g[i2], i1)
				continue
			}
			g[i1] = append(g[i1], i2)
		}
	}
	return g
}

// PlanMemory places records, which must be ordered by First, so that records
// with intersecting lifetimes never share bytes. Each record, in rank order,
// goes at the lowest offset clear of the already-placed records it must avoid.
func PlanMemory(records []UsageRecord) *Plan {
	plan := &Plan{Records: records}
	if len(records) == 0 {
		return plan
	}
	g := guides(records)

	seq := make([]int, len(records))
	for i := range seq {
		seq[i] = i
	}
	sort.Slice(seq, func(a, b int) bool { return rank(records, seq[a], seq[b]) })

	for _, i1 := range seq {
		r1 := &records[i1]
		guide := g[i1]
		sort.Slice(guide, func(a, b int) bool { return records[guide[a]].Offset < records[guide[b]].Offset })
		offset := 0
		for _, i2 := range guide {
			r2 := &records[i2]
			if offset+r1.Size <= r2.Offset {
				break
			}
			offset = max(offset, r2.Offset+r2.Size)
		}
		r1.Offset = offset
	}

	for i := range records {
		plan.Total = max(plan.Total, records[i].Offset+records[i].Size)
		plan.Sum += records[i].Size
	}
	return plan
}
