package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
)

type seriesView struct {
	domain.PodcastSeries
	EpisodeCount int `json:"episodeCount"`
}

type podcastsResponse struct {
	Series      []seriesView `json:"series"`
	LastUpdated *time.Time   `json:"lastUpdated,omitempty"`
}

func (s *server) podcastSnapshot() podcastsResponse {
	counts := s.Podcasts.Counts()
	series := s.Podcasts.Series()
	out := podcastsResponse{Series: make([]seriesView, 0, len(series))}
	for _, ser := range series {
		out.Series = append(out.Series, seriesView{PodcastSeries: ser, EpisodeCount: counts[ser.ID]})
	}
	if at := s.Podcasts.LastUpdated(); !at.IsZero() {
		out.LastUpdated = &at
	}
	return out
}

func (s *server) listPodcasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.podcastSnapshot())
}

func (s *server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.Podcasts.SeriesByID(id); !ok {
		writeError(w, s.log, apperr.NotFound("podcast series", id))
		return
	}
	out := s.Podcasts.EpisodesFor(id)
	if out == nil {
		out = []domain.PodcastEpisode{}
	}
	writeJSON(w, http.StatusOK, out)
}

// adminRefreshPodcasts forces a rotation. On failure the previous catalog
// stays in place and the error is returned.
func (s *server) adminRefreshPodcasts(w http.ResponseWriter, r *http.Request) {
	if err := s.PodcastRefresher.Trigger(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s.podcastSnapshot())
}
