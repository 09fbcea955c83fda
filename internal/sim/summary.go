package sim

import "trendreversal/internal/model"

// Summarize aggregates trades of one (instrument, configuration) pair.
// Win rate counts strictly positive returns.
func Summarize(instrument, configID string, trades []model.Trade) model.Summary {
	sum := model.Summary{Instrument: instrument, ConfigID: configID, Trades: len(trades)}
	if len(trades) == 0 {
		return sum
	}

	wins := 0
	growth := 1.0
	for i := range trades {
		r := trades[i].Return
		if trades[i].Won() {
			wins++
		}
		sum.TotalReturn += r
		growth *= 1 + r
	}
	n := float64(len(trades))
	sum.WinRate = float64(wins) / n
	sum.MeanReturn = sum.TotalReturn / n
	sum.CumulativeReturn = growth - 1
	return sum
}

// SummarizeByKey groups trades by (instrument, config) and summarizes each group
// in first-seen order.
func SummarizeByKey(trades []model.Trade) []model.Summary {
	var order []string
	groups := make(map[string][]model.Trade)
	for _, t := range trades {
		k := t.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}
	out := make([]model.Summary, 0, len(order))
	for _, k := range order {
		g := groups[k]
		out = append(out, Summarize(g[0].Instrument, g[0].ConfigID, g))
	}
	return out
}
