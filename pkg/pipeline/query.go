package pipeline

import (
	"errors"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"misdash/pkg/commitment"
	"misdash/pkg/config"
	"misdash/pkg/extract"
	"misdash/pkg/sheets"
)

var ErrNoCategory = errors.New("view has no category column")

// Search keeps rows where any displayed column (or the derived name) contains query,
// case-insensitively. Fuzzy mode accepts the query's characters in order with gaps.
func Search(rows []DisplayRow, query string, fuzzyMode bool) []DisplayRow {
	q := strings.TrimSpace(query)
	if q == "" {
		return rows
	}
	lq := strings.ToLower(q)
	out := make([]DisplayRow, 0, len(rows))
	for _, r := range rows {
		if matches(r, lq, fuzzyMode) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r DisplayRow, lq string, fuzzyMode bool) bool {
	texts := make([]string, 0, len(r.Row.Cells)+1)
	for _, v := range r.Row.Cells {
		texts = append(texts, sheets.Stringify(v))
	}
	if r.Derived.Name != "" {
		texts = append(texts, r.Derived.Name)
	}
	for _, t := range texts {
		if fuzzyMode {
			if fuzzy.MatchNormalizedFold(lq, t) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(t), lq) {
			return true
		}
	}
	return false
}

// Ranking groups rows by display name with the view's aggregation policy and returns
// the top n. n <= 0 uses the view's configured size.
func (p *Pipeline) Ranking(n int) []extract.Aggregate {
	if n <= 0 {
		n = p.opts.TopN
	}
	rows := p.State().Rows
	items := make([]extract.Keyed, 0, len(rows))
	for _, r := range rows {
		items = append(items, extract.Keyed{Key: r.Derived.Name, Value: r.Derived.Value})
	}

	var aggs []extract.Aggregate
	switch p.opts.Aggregation {
	case config.AggregateMax:
		aggs = extract.MaxByKey(items)
	case config.AggregateSum:
		aggs = extract.SumByKey(items)
	default:
		for i, it := range items {
			if strings.TrimSpace(it.Key) == "" {
				continue
			}
			aggs = append(aggs, extract.Aggregate{Key: strings.TrimSpace(it.Key), Value: it.Value, Order: i})
		}
	}
	return extract.TopN(aggs, n)
}

// Totals sums the value column per category, in first-seen category order.
func (p *Pipeline) Totals() ([]extract.Aggregate, error) {
	if p.opts.Fields.Category == extract.None {
		return nil, ErrNoCategory
	}
	rows := p.State().Rows
	items := make([]extract.Keyed, 0, len(rows))
	for _, r := range rows {
		items = append(items, extract.Keyed{Key: r.Derived.Category, Value: r.Derived.Value})
	}
	return extract.SumByKey(items), nil
}

// Subjects lists the editable people of the current rows, one per name key.
func (s State) Subjects() []commitment.Subject {
	seen := map[string]bool{}
	var out []commitment.Subject
	for _, r := range s.Rows {
		k := commitment.NameKey(r.Derived.Name)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, commitment.Subject{Key: k, Name: r.Derived.Name})
	}
	return out
}
