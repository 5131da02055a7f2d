package usage

import (
	"math"
	"sort"

	"github.com/ari/token-report/internal/tracker"
)

// TopN is how many models the distribution shows before grouping the rest
const TopN = 5

// ModelAggregate accumulates every record of one series
type ModelAggregate struct {
	Name        string `json:"name"`
	Input       int64  `json:"input"`
	Output      int64  `json:"output"`
	CacheRead   int64  `json:"cacheRead"`
	CacheCreate int64  `json:"cacheCreate"`
	Total       int64  `json:"total"`
	Count       int    `json:"count"`
	Color       string `json:"color"`
	Percent     int    `json:"percent"`
}

func (m *ModelAggregate) add(r tracker.UsageRecord) {
	m.Input += r.Input
	m.Output += r.Output
	m.CacheRead += r.CacheRead
	m.CacheCreate += r.CacheCreate
	m.Total += r.Total()
	m.Count++
}

// ViewData is the rendered-ready report body
type ViewData struct {
	Total             int64            `json:"total"`
	Input             int64            `json:"input"`
	Output            int64            `json:"output"`
	Cache             int64            `json:"cache"`
	Models            []ModelAggregate `json:"models"`
	Distribution      []ModelAggregate `json:"distribution"`
	IsExtremeScenario bool             `json:"isExtremeScenario"`
	ModelCount        int              `json:"modelCount"`
}

// BuildView groups records by model, drops empty series, ranks by total
// (ties by name) and buckets everything past TopN into Others.
func BuildView(records []tracker.UsageRecord) ViewData {
	byModel := make(map[string]*ModelAggregate)
	for _, r := range records {
		agg, ok := byModel[r.Model]
		if !ok {
			agg = &ModelAggregate{Name: r.Model}
			byModel[r.Model] = agg
		}
		agg.add(r)
	}

	models := make([]ModelAggregate, 0, len(byModel))
	for _, agg := range byModel {
		if agg.Total == 0 {
			continue
		}
		models = append(models, *agg)
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Total != models[j].Total {
			return models[i].Total > models[j].Total
		}
		return models[i].Name < models[j].Name
	})

	view := ViewData{Models: models, ModelCount: len(models)}
	for _, m := range models {
		view.Total += m.Total
		view.Input += m.Input
		view.Output += m.Output
		view.Cache += m.CacheRead + m.CacheCreate
	}
	for i := range models {
		models[i].Color = SeriesColor(models[i].Name)
		models[i].Percent = percentOf(models[i].Total, view.Total)
	}

	view.IsExtremeScenario = len(models) > TopN
	view.Distribution = distribution(models, view.Total)
	return view
}

func distribution(models []ModelAggregate, grandTotal int64) []ModelAggregate {
	if len(models) <= TopN {
		return append([]ModelAggregate(nil), models...)
	}

	buckets := append(make([]ModelAggregate, 0, TopN+1), models[:TopN]...)
	others := ModelAggregate{Name: OthersName, Color: SeriesColor(OthersName)}
	for _, m := range models[TopN:] {
		others.Input += m.Input
		others.Output += m.Output
		others.CacheRead += m.CacheRead
		others.CacheCreate += m.CacheCreate
		others.Total += m.Total
		others.Count += m.Count
	}
	if others.Total > 0 {
		others.Percent = percentOf(others.Total, grandTotal)
		buckets = append(buckets, others)
	}
	return buckets
}

func percentOf(part, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
