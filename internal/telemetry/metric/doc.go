/*
Package metric implements the instrument registry: named metric instruments
with fixed aggregation kinds, aggregated per attribute set.

# Instruments

	Counter         cumulative sum, deltas must be >= 0
	Histogram       sum/count plus bucket counts over fixed boundaries
	UpDownCounter   cumulative sum, deltas may be negative
	ObservableGauge pull-based: a callback sampled on each collection tick

Instruments are registered once per name; re-registering the same name with
the same kind returns the existing instrument, a different kind is an error.

# Aggregation

The aggregation key is the instrument name plus the sorted attribute pairs.
Each key owns its accumulator and its own lock: updates on one key never
block unrelated keys. Misuse (negative counter delta, NaN/Inf histogram
value) rejects the single update with ErrInvalidArgument and leaves the
accumulator untouched.

Collect snapshots every accumulator cumulatively and runs gauge callbacks; a
failing callback is logged and skipped for that tick only.
*/
package metric
