package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"lifecoach/backend/internal/domain"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyAPIBase  = "https://api.spotify.com/v1"
)

// FeedEpisode is an episode as the feed reports it, before it is bound to
// a series.
type FeedEpisode struct {
	ID          string
	Name        string
	Description string
	ExternalURL string
	PreviewURL  string
	ImageURL    string
	DurationMS  int
	ReleaseDate string
}

// Feed lists the newest episodes of a show and the show's episode total.
type Feed interface {
	LatestEpisodes(ctx context.Context, showID string, limit int) ([]FeedEpisode, int, error)
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Market       string
	// BaseURL and TokenURL override the public endpoints in tests.
	BaseURL  string
	TokenURL string
	Timeout  time.Duration
}

type SpotifyFeed struct {
	client  *http.Client
	baseURL string
	market  string
}

func NewSpotifyFeed(ctx context.Context, cfg SpotifyConfig) (*SpotifyFeed, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify: client id and secret are required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyTokenURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = spotifyAPIBase
	}
	if cfg.Market == "" {
		cfg.Market = "SE"
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	client := cc.Client(ctx)
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return &SpotifyFeed{client: client, baseURL: cfg.BaseURL, market: cfg.Market}, nil
}

type spotifyEpisodesResponse struct {
	Items []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Description  string `json:"description"`
		DurationMS   int    `json:"duration_ms"`
		ReleaseDate  string `json:"release_date"`
		AudioPreview string `json:"audio_preview_url"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"items"`
	Total int `json:"total"`
}

func (f *SpotifyFeed) LatestEpisodes(ctx context.Context, showID string, limit int) ([]FeedEpisode, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("market", f.market)
	endpoint := fmt.Sprintf("%s/shows/%s/episodes?%s", f.baseURL, url.PathEscape(showID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("spotify: fetch episodes for %s: %w", showID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("spotify: fetch episodes for %s: status %d: %s", showID, resp.StatusCode, body)
	}

	var decoded spotifyEpisodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, 0, fmt.Errorf("spotify: decode episodes for %s: %w", showID, err)
	}

	out := make([]FeedEpisode, 0, len(decoded.Items))
	for _, it := range decoded.Items {
		ep := FeedEpisode{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			ExternalURL: it.ExternalURLs.Spotify,
			PreviewURL:  it.AudioPreview,
			DurationMS:  it.DurationMS,
			ReleaseDate: it.ReleaseDate,
		}
		if len(it.Images) > 0 {
			ep.ImageURL = it.Images[0].URL
		}
		out = append(out, ep)
	}
	return out, decoded.Total, nil
}

var episodeNumberPrefix = regexp.MustCompile(`^\s*(\d+)\.\s`)

// ToEpisode binds a feed episode to its series.
func ToEpisode(seriesID string, ep FeedEpisode) domain.PodcastEpisode {
	audio := ep.PreviewURL
	if audio == "" {
		audio = ep.ExternalURL
	}
	out := domain.PodcastEpisode{
		ID:          seriesID + "_" + ep.ID,
		SeriesID:    seriesID,
		Title:       ep.Name,
		Description: ep.Description,
		ExternalURL: ep.ExternalURL,
		AudioURL:    audio,
		ImageURL:    ep.ImageURL,
		Duration:    ep.DurationMS / 1000,
		ReleaseDate: parseReleaseDate(ep.ReleaseDate),
	}
	if m := episodeNumberPrefix.FindStringSubmatch(ep.Name); m != nil {
		out.EpisodeNumber, _ = strconv.Atoi(m[1])
	}
	return out
}

// parseReleaseDate accepts the day, month and year precisions the feed uses.
func parseReleaseDate(s string) time.Time {
	for _, layout := range []string{time.DateOnly, "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
