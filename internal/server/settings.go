package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/store"
)

// Setting keys persisted in the global store. Stored values override the
// config file at runtime.
const (
	SettingProvider         = "provider"
	SettingLocalHost        = "local_host"
	SettingLocalEmbedModel  = "local_embed_model"
	SettingLocalLLMModel    = "local_llm_model"
	SettingRemoteAPIKey     = "remote_api_key"
	SettingRemoteEmbedModel = "remote_embed_model"
	SettingRemoteLLMModel   = "remote_llm_model"
	SettingRootFolder       = "root_folder"
)

// Effective is the merged view of config defaults and stored overrides.
type Effective struct {
	Provider         string
	LocalHost        string
	LocalEmbedModel  string
	LocalLLMModel    string
	RemoteAPIKey     string
	RemoteEmbedModel string
	RemoteLLMModel   string
	RootFolder       string
}

// EffectiveSettings merges stored settings over the config defaults.
func EffectiveSettings(ctx context.Context, global *store.GlobalStore, cfg *config.Config) (Effective, error) {
	stored, err := global.AllSettings(ctx)
	if err != nil {
		return Effective{}, fmt.Errorf("failed to load settings; %w", err)
	}

	rootDefault := cfg.RootPath()

	pick := func(key, def string) string {
		if v, ok := stored[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		return def
	}

	return Effective{
		Provider:         pick(SettingProvider, cfg.Provider),
		LocalHost:        pick(SettingLocalHost, cfg.Local.Host),
		LocalEmbedModel:  pick(SettingLocalEmbedModel, cfg.Local.EmbedModel),
		LocalLLMModel:    pick(SettingLocalLLMModel, cfg.Local.LLMModel),
		RemoteAPIKey:     pick(SettingRemoteAPIKey, cfg.Remote.ResolveAPIKey()),
		RemoteEmbedModel: pick(SettingRemoteEmbedModel, cfg.Remote.EmbedModel),
		RemoteLLMModel:   pick(SettingRemoteLLMModel, cfg.Remote.LLMModel),
		RootFolder:       pick(SettingRootFolder, rootDefault),
	}, nil
}

// BuildProvider constructs the embedding/LLM provider the settings select.
func BuildProvider(es Effective, rateLimit int) embed.Provider {
	if es.Provider == "remote" {
		return embed.NewRemoteProvider(es.RemoteAPIKey, es.RemoteEmbedModel, es.RemoteLLMModel,
			embed.WithRemoteRateLimit(rateLimit))
	}
	return embed.NewLocalProvider(es.LocalHost, es.LocalEmbedModel, es.LocalLLMModel)
}

// settingsResponse is what the front-end sees. The API key is never echoed.
type settingsResponse struct {
	Provider         string `json:"provider"`
	LocalHost        string `json:"local_host"`
	LocalEmbedModel  string `json:"local_embed_model"`
	LocalLLMModel    string `json:"local_llm_model"`
	RemoteAPIKey     string `json:"remote_api_key"`
	RemoteAPIKeySet  bool   `json:"remote_api_key_set"`
	RemoteEmbedModel string `json:"remote_embed_model"`
	RemoteLLMModel   string `json:"remote_llm_model"`
	RootFolder       string `json:"root_folder"`
}

func (s *Server) settingsResponse(ctx context.Context) (settingsResponse, error) {
	es, err := EffectiveSettings(ctx, s.deps.Global, s.cfg)
	if err != nil {
		return settingsResponse{}, err
	}
	return settingsResponse{
		Provider:         es.Provider,
		LocalHost:        es.LocalHost,
		LocalEmbedModel:  es.LocalEmbedModel,
		LocalLLMModel:    es.LocalLLMModel,
		RemoteAPIKey:     "",
		RemoteAPIKeySet:  es.RemoteAPIKey != "",
		RemoteEmbedModel: es.RemoteEmbedModel,
		RemoteLLMModel:   es.RemoteLLMModel,
		RootFolder:       es.RootFolder,
	}, nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	resp, err := s.settingsResponse(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// settingsUpdate uses pointers so absent fields are left untouched.
type settingsUpdate struct {
	Provider         *string `json:"provider"`
	LocalHost        *string `json:"local_host"`
	LocalEmbedModel  *string `json:"local_embed_model"`
	LocalLLMModel    *string `json:"local_llm_model"`
	RemoteAPIKey     *string `json:"remote_api_key"`
	RemoteEmbedModel *string `json:"remote_embed_model"`
	RemoteLLMModel   *string `json:"remote_llm_model"`
	RootFolder       *string `json:"root_folder"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var upd settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()

	toStore := make(map[string]string)
	set := func(key string, v *string) {
		if v != nil {
			toStore[key] = strings.TrimSpace(*v)
		}
	}
	if upd.Provider != nil {
		p := strings.ToLower(strings.TrimSpace(*upd.Provider))
		if p == "local" || p == "remote" {
			toStore[SettingProvider] = p
		}
	}
	set(SettingLocalHost, upd.LocalHost)
	set(SettingLocalEmbedModel, upd.LocalEmbedModel)
	set(SettingLocalLLMModel, upd.LocalLLMModel)
	set(SettingRemoteAPIKey, upd.RemoteAPIKey)
	set(SettingRemoteEmbedModel, upd.RemoteEmbedModel)
	set(SettingRemoteLLMModel, upd.RemoteLLMModel)

	var newRoot string
	if upd.RootFolder != nil && strings.TrimSpace(*upd.RootFolder) != "" {
		abs, err := filepath.Abs(strings.TrimSpace(*upd.RootFolder))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid root folder")
			return
		}
		if abs != s.deps.Pipeline.Root() {
			newRoot = abs
		}
		toStore[SettingRootFolder] = abs
	}

	if err := s.deps.Global.SetSettings(ctx, toStore); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Provider and model switches take effect immediately.
	es, err := EffectiveSettings(ctx, s.deps.Global, s.cfg)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Adapter.SwitchProvider(BuildProvider(es, s.cfg.Remote.RateLimit))
	s.logger.Info("settings updated", "provider", es.Provider)

	if newRoot != "" && s.deps.OnRootSwitch != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := s.deps.OnRootSwitch(ctx, newRoot); err != nil {
				s.logger.Error("root switch failed", "root", newRoot, "error", err)
			}
		}()
	}

	resp, err := s.settingsResponse(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// testResult is the provider connectivity probe response.
type testResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Models  []string `json:"models,omitempty"`
}

func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	var upd settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	es, err := EffectiveSettings(r.Context(), s.deps.Global, s.cfg)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	provider := es.Provider
	if upd.Provider != nil {
		provider = strings.ToLower(strings.TrimSpace(*upd.Provider))
	}

	switch provider {
	case "local":
		host := es.LocalHost
		if upd.LocalHost != nil && *upd.LocalHost != "" {
			host = *upd.LocalHost
		}
		writeJSON(w, http.StatusOK, s.testLocal(r.Context(), host, es))
	case "remote":
		key := es.RemoteAPIKey
		if upd.RemoteAPIKey != nil && strings.TrimSpace(*upd.RemoteAPIKey) != "" {
			key = strings.TrimSpace(*upd.RemoteAPIKey)
		}
		writeJSON(w, http.StatusOK, s.testRemote(r.Context(), key, es))
	default:
		writeJSON(w, http.StatusOK, testResult{
			Success: false,
			Message: fmt.Sprintf("Unknown provider: %s", provider),
		})
	}
}

func (s *Server) testLocal(ctx context.Context, host string, es Effective) testResult {
	p := embed.NewLocalProvider(host, es.LocalEmbedModel, es.LocalLLMModel)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.CheckHealth(ctx); err != nil {
		return testResult{Success: false, Message: fmt.Sprintf("Cannot reach Ollama: %v", err)}
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		return testResult{Success: true, Message: "Connected to Ollama"}
	}
	return testResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Ollama (%d models available)", len(models)),
		Models:  models,
	}
}

func (s *Server) testRemote(ctx context.Context, apiKey string, es Effective) testResult {
	if apiKey == "" {
		return testResult{Success: false, Message: "No API key provided"}
	}

	p := embed.NewRemoteProvider(apiKey, es.RemoteEmbedModel, es.RemoteLLMModel)

	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	if err := p.CheckHealth(ctx); err != nil {
		return testResult{Success: false, Message: fmt.Sprintf("Provider error: %v", err)}
	}
	return testResult{Success: true, Message: "Connected"}
}
