// Package buzzsprout provides the Buzzsprout podcast hosting storage
// backend. Audio uploads become podcast episodes.
package buzzsprout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/storage"
)

const (
	defaultBaseURL = "https://www.buzzsprout.com/api"

	requestTimeout = 2 * time.Minute

	// errorBodyLimit caps how much of an error response lands in messages.
	errorBodyLimit = 512
)

// episode is the subset of the Buzzsprout episode payload this backend
// reads.
type episode struct {
	ID       int64  `json:"id"`
	AudioURL string `json:"audio_url"`
}

// Store implements storage.Provider backed by a Buzzsprout podcast.
// Object references are episode IDs.
type Store struct {
	apiToken  string
	podcastID string
	baseURL   string
	client    *http.Client
}

// Option configures the Buzzsprout store.
type Option func(*Store)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(s *Store) {
		s.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// New creates a Buzzsprout storage backend for the given podcast.
func New(apiToken, podcastID string, opts ...Option) (*Store, error) {
	if apiToken == "" {
		return nil, errors.New("buzzsprout api token is required")
	}
	if podcastID == "" {
		return nil, errors.New("buzzsprout podcast id is required")
	}

	s := &Store{
		apiToken:  apiToken,
		podcastID: podcastID,
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements storage.Provider.
func (s *Store) Name() string {
	return "buzzsprout"
}

// Upload implements storage.Provider. It creates a new episode with the
// audio attached; the returned reference is the episode ID.
func (s *Store) Upload(ctx context.Context, input storage.UploadInput) (*storage.Object, error) {
	if len(input.Data) == 0 {
		return nil, storage.ErrEmptyData
	}
	if input.ContentID == "" {
		return nil, storage.ErrMissingContentID
	}

	body, contentType, err := s.episodeForm(input)
	if err != nil {
		return nil, fmt.Errorf("failed to build episode form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/episodes.json", s.baseURL, s.podcastID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+s.apiToken)
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
	if ep.ID == 0 {
		return nil, errors.New("episode response missing id")
	}

	object := &storage.Object{
		Ref:        strconv.FormatInt(ep.ID, 10),
		URL:        ep.AudioURL,
		Provider:   s.Name(),
		SizeBytes:  int64(len(input.Data)),
		UploadedAt: time.Now().UTC(),
	}
	logger.StorageUpload(s.Name(), object.Ref, object.SizeBytes, "podcast_id", s.podcastID)
	return object, nil
}

// episodeForm builds the multipart request body for episode creation.
func (s *Store) episodeForm(input storage.UploadInput) (*bytes.Buffer, string, error) {
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
	audioPart, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := audioPart.Write(input.Data); err != nil {
		return nil, "", err
	}

	if len(input.Artwork) > 0 {
		artworkPart, err := writer.CreateFormFile("artwork", "artwork.jpg")
		if err != nil {
			return nil, "", err
		}
		if _, err := artworkPart.Write(input.Artwork); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// Delete implements storage.Provider. It removes the episode.
func (s *Store) Delete(ctx context.Context, ref string) error {
	endpoint := fmt.Sprintf("%s/%s/episodes/%s.json", s.baseURL, s.podcastID, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+s.apiToken)

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

// URL implements storage.Provider. Buzzsprout serves episode audio from
// stable public URLs, so expiry is ignored.
func (s *Store) URL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/episodes/%s.json", s.baseURL, s.podcastID, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+s.apiToken)

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
	if ep.AudioURL == "" {
		return "", errors.New("episode has no audio URL")
	}
	return ep.AudioURL, nil
}

// Validate implements storage.Provider. It lists episodes to prove the
// token and podcast ID are usable.
func (s *Store) Validate(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s/episodes.json", s.baseURL, s.podcastID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+s.apiToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach buzzsprout: %w", err)
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
		return fmt.Errorf("buzzsprout %s failed with status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("buzzsprout %s failed with status %d: %s", op, resp.StatusCode, msg)
}
