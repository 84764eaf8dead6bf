package domain

import "time"

type PodcastSeries struct {
	ID              string `json:"id" mapstructure:"id"`
	Title           string `json:"title" mapstructure:"title"`
	Description     string `json:"description" mapstructure:"description"`
	ShowID          string `json:"showId" mapstructure:"show_id"`
	Language        string `json:"language" mapstructure:"language"`
	ImageURL        string `json:"imageUrl" mapstructure:"image_url"`
	MoreEpisodesURL string `json:"moreEpisodesUrl" mapstructure:"-"`
}

type PodcastEpisode struct {
	ID            string    `json:"id"`
	SeriesID      string    `json:"seriesId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ExternalURL   string    `json:"externalUrl"`
	AudioURL      string    `json:"audioUrl"`
	ImageURL      string    `json:"imageUrl"`
	Duration      int       `json:"duration"`
	ReleaseDate   time.Time `json:"releaseDate"`
	EpisodeNumber int       `json:"episodeNumber,omitempty"`
}
