package metric

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrInvalidArgument rejects a single misused instrument update: a negative
// counter delta or a NaN/Inf histogram value. The accumulator is unchanged.
var ErrInvalidArgument = errors.New("invalid instrument argument")

// Kind is an instrument's fixed aggregation semantics.
type Kind int

const (
	KindCounter Kind = iota
	KindHistogram
	KindUpDownCounter
	KindObservableGauge
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindHistogram:
		return "histogram"
	case KindUpDownCounter:
		return "updowncounter"
	case KindObservableGauge:
		return "observablegauge"
	default:
		return "unknown"
	}
}

// Opts carries the optional instrument metadata.
type Opts struct {
	Unit        string
	Description string
}

// Descriptor identifies a registered instrument.
type Descriptor struct {
	Name        string
	Kind        Kind
	Unit        string
	Description string
}

// Attr is a single metric attribute. Attributes with the same pairs in any
// order aggregate into the same series.
type Attr struct {
	Key   string
	Value string
}

// Point is one exported data point: a cumulative snapshot of a single
// aggregation key at collection time. For histograms the Sum/Count/Bucket
// fields are set instead of Value.
type Point struct {
	Name         string
	Kind         Kind
	Unit         string
	Time         time.Time
	Attrs        []Attr
	Value        float64
	Sum          float64
	Count        uint64
	BucketCounts []uint64
	Bounds       []float64
}

// attrKey builds the canonical aggregation key suffix: attribute pairs sorted
// by key, so {a=1,b=2} and {b=2,a=1} land in the same series.
func attrKey(attrs []Attr) (string, []Attr) {
	if len(attrs) == 0 {
		return "", nil
	}
	sorted := make([]Attr, len(attrs))
	copy(sorted, attrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var sb strings.Builder
	for _, a := range sorted {
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(a.Value)
		sb.WriteByte(';')
	}
	return sb.String(), sorted
}
