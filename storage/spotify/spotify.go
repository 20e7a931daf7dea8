// Package spotify provides the Spotify podcast storage backend. Audio
// uploads become show episodes; Spotify requires square episode artwork
// of at least 640x640 pixels, which this backend enforces.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/AudioPress/audiopress/artwork"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/storage"
)

const (
	defaultBaseURL  = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"

	// minArtworkSide is Spotify's minimum episode artwork dimension.
	minArtworkSide = 640

	requestTimeout = 2 * time.Minute

	errorBodyLimit = 512
)

// episode is the subset of the Spotify episode payload this backend reads.
type episode struct {
	ID           string `json:"id"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// Config configures the Spotify storage backend. Authentication uses the
// OAuth2 refresh-token grant; access tokens are obtained and renewed
// automatically.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// ShowID is the podcast show episodes are uploaded to. Required.
	ShowID string

	// BaseURL overrides the API base URL (for testing).
	BaseURL string

	// TokenURL overrides the OAuth2 token endpoint (for testing).
	TokenURL string
}

// Store implements storage.Provider backed by a Spotify show.
// Object references are episode IDs.
type Store struct {
	config  Config
	baseURL string
	client  *http.Client
}

// Option configures the Spotify store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client, bypassing the OAuth2
// transport (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// New creates a Spotify storage backend for the given show.
func New(config Config, opts ...Option) (*Store, error) {
	if config.ClientID == "" || config.ClientSecret == "" || config.RefreshToken == "" {
		return nil, errors.New("spotify client id, client secret and refresh token are required")
	}
	if config.ShowID == "" {
		return nil, errors.New("spotify show id is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	s := &Store{
		config:  config,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = oauthClient(config)
	}
	return s, nil
}

// oauthClient builds an HTTP client that refreshes access tokens from the
// stored refresh token as needed.
func oauthClient(config Config) *http.Client {
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	conf := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	ctx := context.Background()
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken})

	client := oauth2.NewClient(ctx, source)
	client.Timeout = requestTimeout
	return client
}

// Name implements storage.Provider.
func (s *Store) Name() string {
	return "spotify"
}

// Upload implements storage.Provider. Artwork is mandatory; it is cropped
// square and scaled to Spotify's minimum dimension before upload.
func (s *Store) Upload(ctx context.Context, input storage.UploadInput) (*storage.Object, error) {
	if len(input.Data) == 0 {
		return nil, storage.ErrEmptyData
	}
	if input.ContentID == "" {
		return nil, storage.ErrMissingContentID
	}
	if len(input.Artwork) == 0 {
		return nil, storage.ErrArtworkRequired
	}

	art, err := artwork.Process(input.Artwork, artwork.ProcessConfig{
		MinDimension: minArtworkSide,
		MaxDimension: artwork.DefaultMaxDimension,
		Quality:      artwork.DefaultQuality,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process artwork: %w", err)
	}

	body, contentType, err := s.episodeForm(input, art.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to build episode form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/shows/%s/episodes", s.baseURL, s.config.ShowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload episode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, s.statusError("upload episode", resp)
	}

	var ep episode
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return nil, fmt.Errorf("failed to decode episode response: %w", err)
	}
	if ep.ID == "" {
		return nil, errors.New("episode response missing id")
	}

	object := &storage.Object{
		Ref:        ep.ID,
		URL:        ep.ExternalURLs.Spotify,
		Provider:   s.Name(),
		SizeBytes:  int64(len(input.Data)),
		UploadedAt: time.Now().UTC(),
	}
	logger.StorageUpload(s.Name(), object.Ref, object.SizeBytes, "show_id", s.config.ShowID)
	return object, nil
}

// episodeForm builds the multipart request body for episode creation.
func (s *Store) episodeForm(input storage.UploadInput, artworkData []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	title := input.Title
	if title == "" {
		title = input.ContentID
	}
	if err := writer.WriteField("title", title); err != nil {
		return nil, "", err
	}
	if input.Description != "" {
		if err := writer.WriteField("description", input.Description); err != nil {
			return nil, "", err
		}
	}

	filename := input.Filename
	if filename == "" {
		filename = storage.SanitizeFilename(input.ContentID) + storage.ExtensionForMIME(input.MIMEType)
	}
	audioPart, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := audioPart.Write(input.Data); err != nil {
		return nil, "", err
	}

	artworkPart, err := writer.CreateFormFile("artwork", "artwork.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := artworkPart.Write(artworkData); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// Delete implements storage.Provider. It removes the episode from the
// show.
func (s *Store) Delete(ctx context.Context, ref string) error {
	endpoint := fmt.Sprintf("%s/shows/%s/episodes/%s", s.baseURL, s.config.ShowID, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return storage.ErrNotFound
	default:
		return s.statusError("delete episode", resp)
	}
}

// URL implements storage.Provider. It returns the episode's public
// Spotify URL; expiry is ignored.
func (s *Store) URL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	endpoint := fmt.Sprintf("%s/shows/%s/episodes/%s", s.baseURL, s.config.ShowID, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch episode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", storage.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", s.statusError("fetch episode", resp)
	}

	var ep episode
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return "", fmt.Errorf("failed to decode episode response: %w", err)
	}
	if ep.ExternalURLs.Spotify == "" {
		return "", errors.New("episode has no public URL")
	}
	return ep.ExternalURLs.Spotify, nil
}

// Validate implements storage.Provider. Fetching the show proves the
// refresh token and show ID are usable.
func (s *Store) Validate(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/shows/%s", s.baseURL, s.config.ShowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach spotify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.statusError("validate credentials", resp)
	}
	return nil
}

// statusError builds an error from an unexpected API response.
func (s *Store) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("spotify %s failed with status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("spotify %s failed with status %d: %s", op, resp.StatusCode, msg)
}
