// Package podcast keeps the latest episodes of each configured podcast
// series and rotates them from the feed once a day.
package podcast

import (
	"sync"
	"time"

	"lifecoach/backend/internal/domain"
)

const showURLPrefix = "https://open.spotify.com/show/"

// DefaultSeries are the shows published by the coach.
func DefaultSeries() []domain.PodcastSeries {
	return WithLinks([]domain.PodcastSeries{
		{
			ID:          "hombres-valientes",
			Title:       "Hombres valientes",
			Description: "Un podcast que te ayudará a desarrollar la mentalidad, herramientas y estrategias para convertirte en la mejor versión de ti mismo como hombre.",
			ShowID:      "7awdaEr1ovXnQu4qFqxo4P",
			Language:    "es",
		},
		{
			ID:          "man-i-fokus",
			Title:       "Män i fokus!",
			Description: "En podcast som hjälper dig att utveckla tankesättet, verktygen och strategierna för att bli den bästa versionen av dig själv som man.",
			ShowID:      "6QEtTzOqllO2eQrKO07s6I",
			Language:    "sv",
		},
		{
			ID:          "frid-med-gud",
			Title:       "Frid med Gud!",
			Description: "En kristen podcast som utforskar tro, hopp och kärlek i det dagliga livet.",
			ShowID:      "09jMerowSyLPpy8Q10rD67",
			Language:    "sv",
		},
	})
}

// WithLinks fills MoreEpisodesURL from each series' show id.
func WithLinks(series []domain.PodcastSeries) []domain.PodcastSeries {
	out := make([]domain.PodcastSeries, len(series))
	for i, s := range series {
		s.MoreEpisodesURL = showURLPrefix + s.ShowID
		out[i] = s
	}
	return out
}

// Snapshot is the result of one rotation.
type Snapshot struct {
	Episodes map[string][]domain.PodcastEpisode
	// Totals is the number of episodes each show has published.
	Totals map[string]int
}

// Catalog holds the displayed episodes. Readers never observe a partial
// rotation: ReplaceEpisodes swaps the whole snapshot.
type Catalog struct {
	series []domain.PodcastSeries

	mu          sync.RWMutex
	snap        Snapshot
	lastUpdated time.Time
}

func NewCatalog(series []domain.PodcastSeries) *Catalog {
	return &Catalog{
		series: series,
		snap: Snapshot{
			Episodes: map[string][]domain.PodcastEpisode{},
			Totals:   map[string]int{},
		},
	}
}

func (c *Catalog) Series() []domain.PodcastSeries {
	out := make([]domain.PodcastSeries, len(c.series))
	copy(out, c.series)
	return out
}

func (c *Catalog) SeriesByID(id string) (domain.PodcastSeries, bool) {
	for _, s := range c.series {
		if s.ID == id {
			return s, true
		}
	}
	return domain.PodcastSeries{}, false
}

func (c *Catalog) Episodes() map[string][]domain.PodcastEpisode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]domain.PodcastEpisode, len(c.snap.Episodes))
	for k, v := range c.snap.Episodes {
		out[k] = append([]domain.PodcastEpisode(nil), v...)
	}
	return out
}

func (c *Catalog) EpisodesFor(seriesID string) []domain.PodcastEpisode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.PodcastEpisode(nil), c.snap.Episodes[seriesID]...)
}

// Counts returns the published episode total per series.
func (c *Catalog) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.snap.Totals))
	for k, v := range c.snap.Totals {
		out[k] = v
	}
	return out
}

func (c *Catalog) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

func (c *Catalog) ReplaceEpisodes(snap Snapshot, at time.Time) {
	if snap.Episodes == nil {
		snap.Episodes = map[string][]domain.PodcastEpisode{}
	}
	if snap.Totals == nil {
		snap.Totals = map[string]int{}
	}
	c.mu.Lock()
	c.snap = snap
	c.lastUpdated = at
	c.mu.Unlock()
}
