package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/player"
	"github.com/AudioPress/audiopress/records"
)

// generateRequest is the POST /v1/tts/generate body.
type generateRequest struct {
	ContentID string  `json:"content_id"`
	Text      string  `json:"text"`
	Title     string  `json:"title,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
	Force     bool    `json:"force,omitempty"`
	Profile   string  `json:"profile,omitempty"`
	Provider  string  `json:"provider,omitempty"`
	Voice     string  `json:"voice,omitempty"`
	Language  string  `json:"language,omitempty"`
	Format    string  `json:"format,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
}

// applyProfile folds a named voice profile into the request. Fields the
// request spells out explicitly win over the profile's.
func (s *Server) applyProfile(req *generateRequest) error {
	if req.Profile == "" {
		return nil
	}
	if s.profiles == nil {
		return fmt.Errorf("no voice profiles configured")
	}

	profile, err := s.profiles.Get(req.Profile)
	if err != nil {
		return err
	}

	if req.Provider == "" {
		req.Provider = profile.Spec.Provider
	}
	if req.Voice == "" {
		req.Voice = profile.Spec.VoiceID
	}
	if req.Language == "" {
		req.Language = profile.Spec.Language
	}
	if req.Format == "" {
		req.Format = profile.Spec.Format
	}
	if req.Speed == 0 {
		req.Speed = profile.Spec.Speed
	}
	if req.Pitch == 0 {
		req.Pitch = profile.Spec.Pitch
	}
	return nil
}

// generateResponse is the record snapshot returned after a generation.
type generateResponse struct {
	ContentID       string          `json:"content_id"`
	URL             string          `json:"url"`
	Provider        string          `json:"provider"`
	Voice           string          `json:"voice,omitempty"`
	Format          string          `json:"format"`
	DurationSeconds float64         `json:"duration_seconds"`
	Chunks          int             `json:"chunks"`
	Cached          bool            `json:"cached"`
	RequestID       string          `json:"request_id"`
	Record          *records.Record `json:"record"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := s.applyProfile(&req); err != nil {
		writeError(w, http.StatusBadRequest, "unknown_profile", err.Error())
		return
	}

	result, err := s.engine.Generate(r.Context(), engine.GenerateRequest{
		ContentID:       req.ContentID,
		Text:            req.Text,
		Title:           req.Title,
		UserID:          req.UserID,
		Provider:        req.Provider,
		Voice:           req.Voice,
		Language:        req.Language,
		Format:          req.Format,
		Speed:           req.Speed,
		Pitch:           req.Pitch,
		ForceRegenerate: req.Force,
		RequestID:       requestIDFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		ContentID:       result.Record.ContentID,
		URL:             result.URL,
		Provider:        result.Provider,
		Voice:           result.Voice,
		Format:          result.Format,
		DurationSeconds: result.DurationSeconds,
		Chunks:          result.Chunks,
		Cached:          result.Cached,
		RequestID:       result.RequestID,
		Record:          result.Record,
	})
}

// validateProviderRequest is the POST /v1/tts/validate-provider body.
type validateProviderRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) handleValidateProvider(w http.ResponseWriter, r *http.Request) {
	var req validateProviderRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider is required")
		return
	}

	result, err := s.engine.ValidateProvider(r.Context(), req.Provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Load(r.Context(), r.PathValue("content_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// updateRecordRequest is the PUT /v1/tts/{content_id} body. Pointer
// fields distinguish "absent" from zero values for partial updates.
type updateRecordRequest struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	Provider      *string `json:"provider,omitempty"`
	VoiceID       *string `json:"voice_id,omitempty"`
	Language      *string `json:"language,omitempty"`
	CustomText    *string `json:"custom_text,omitempty"`
	UseCustomText *bool   `json:"use_custom_text,omitempty"`

	// Text is the content body, used only when AutoGenerate kicks off
	// a synthesis.
	Text string `json:"text,omitempty"`

	// AutoGenerate starts a background generation when the record is
	// enabled and has no generated audio yet.
	AutoGenerate bool `json:"auto_generate,omitempty"`
}

// updateRecordResponse reports the saved record and whether a
// background generation was started.
type updateRecordResponse struct {
	Record            *records.Record `json:"record"`
	GenerationStarted bool            `json:"generation_started"`
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	contentID := r.PathValue("content_id")

	var req updateRecordRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	record, err := s.store.Load(r.Context(), contentID)
	if errors.Is(err, records.ErrNotFound) {
		record = records.New(contentID)
		err = nil
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Enabled != nil {
		record.Enabled = *req.Enabled
	}
	if req.Provider != nil {
		record.Voice.Provider = *req.Provider
	}
	if req.VoiceID != nil {
		record.Voice.VoiceID = *req.VoiceID
	}
	if req.Language != nil {
		record.Voice.Language = *req.Language
	}
	if req.CustomText != nil {
		record.Content.CustomText = *req.CustomText
	}
	if req.UseCustomText != nil {
		record.Content.UseCustomText = *req.UseCustomText
	}

	if err := s.store.Save(r.Context(), record); err != nil {
		writeDomainError(w, err)
		return
	}

	started := false
	if req.AutoGenerate && record.Enabled && record.Audio.Status != records.StatusGenerated {
		started = true
		go s.backgroundGenerate(engine.GenerateRequest{
			ContentID: contentID,
			Text:      req.Text,
			RequestID: requestIDFrom(r),
		})
	}

	writeJSON(w, http.StatusOK, updateRecordResponse{
		Record:            record,
		GenerationStarted: started,
	})
}

// backgroundGenerate runs a generation detached from the request. The
// engine's in-flight guard collapses duplicate saves into one run.
func (s *Server) backgroundGenerate(req engine.GenerateRequest) {
	ctx := logger.WithRequestID(context.Background(), req.RequestID)
	if _, err := s.engine.Generate(ctx, req); err != nil {
		if errors.Is(err, engine.ErrGenerationInProgress) {
			logger.DebugContext(ctx, "Background generation already running",
				"content_id", req.ContentID)
			return
		}
		logger.ErrorContext(ctx, "Background generation failed",
			"content_id", req.ContentID,
			"error", err,
		)
	}
}

func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.DeleteAudio(r.Context(), r.PathValue("content_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// providersResponse lists the registered synthesis providers.
type providersResponse struct {
	Providers []string `json:"providers"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{Providers: s.providers.List()})
}

// voiceInfo is the wire shape of one supported voice.
type voiceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// voicesResponse lists a provider's supported voices.
type voicesResponse struct {
	Provider string      `json:"provider"`
	Voices   []voiceInfo `json:"voices"`
}

func (s *Server) handleProviderVoices(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	svc, ok := s.providers.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown provider "+name)
		return
	}

	supported := svc.SupportedVoices()
	voices := make([]voiceInfo, 0, len(supported))
	for _, v := range supported {
		voices = append(voices, voiceInfo{
			ID:          v.ID,
			Name:        v.Name,
			Language:    v.Language,
			Gender:      v.Gender,
			Description: v.Description,
		})
	}
	writeJSON(w, http.StatusOK, voicesResponse{Provider: name, Voices: voices})
}

// profilesResponse lists the loaded voice profile names.
type profilesResponse struct {
	Profiles []string `json:"profiles"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeJSON(w, http.StatusOK, profilesResponse{Profiles: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, profilesResponse{Profiles: s.profiles.List()})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.profiles == nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown voice profile "+name)
		return
	}
	profile, err := s.profiles.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Snapshot())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]interface{}
	if err := s.decodeJSON(w, r, &values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	for path, value := range values {
		if err := s.config.Set(path, value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	if s.config.Path() != "" {
		if err := s.config.Save(); err != nil {
			logger.WarnContext(r.Context(), "Failed to persist config", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, s.config.Snapshot())
}

func (s *Server) handlePlayerConfig(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Load(r.Context(), r.PathValue("content_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cfg, err := player.BuildConfig(record, r.URL.Query().Get("title"), s.playerSettings())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePlayerEmbed(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Load(r.Context(), r.PathValue("content_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cfg, err := player.BuildConfig(record, r.URL.Query().Get("title"), s.playerSettings())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	html, err := player.RenderEmbed(cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handlePlayerPlayed(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RecordPlay(r.Context(), r.PathValue("content_id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz probes the records store so load balancers stop routing
// before a broken backend takes traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.List(r.Context(), records.ListOptions{Limit: 1}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
