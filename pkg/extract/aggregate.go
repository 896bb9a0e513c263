package extract

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type Keyed struct {
	Key   string
	Value float64
}

// Aggregate is one group. Order is the position of the group's first row in the input.
type Aggregate struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Order int     `json:"-"`
}

// MaxByKey keeps the largest value per key. It answers "how much is outstanding" for a
// person whose name appears on several rows. Blank keys are skipped.
func MaxByKey(items []Keyed) []Aggregate {
	var out []Aggregate
	idx := map[string]int{}
	for i, it := range items {
		k := strings.TrimSpace(it.Key)
		if k == "" {
			continue
		}
		j, ok := idx[k]
		if !ok {
			idx[k] = len(out)
			out = append(out, Aggregate{Key: k, Value: it.Value, Order: i})
			continue
		}
		if it.Value > out[j].Value {
			out[j].Value = it.Value
		}
	}
	return out
}

// SumByKey totals values per key ("how much in total" per category). Blank keys are skipped.
func SumByKey(items []Keyed) []Aggregate {
	var out []Aggregate
	var sums []decimal.Decimal
	idx := map[string]int{}
	for i, it := range items {
		k := strings.TrimSpace(it.Key)
		if k == "" {
			continue
		}
		j, ok := idx[k]
		if !ok {
			j = len(out)
			idx[k] = j
			out = append(out, Aggregate{Key: k, Order: i})
			sums = append(sums, decimal.Zero)
		}
		sums[j] = sums[j].Add(decimal.NewFromFloat(it.Value))
	}
	for j := range out {
		out[j].Value = sums[j].InexactFloat64()
	}
	return out
}

// TopN orders by descending value, ties by original row order. n <= 0 keeps all.
func TopN(aggs []Aggregate, n int) []Aggregate {
	out := append([]Aggregate(nil), aggs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Order < out[j].Order
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
