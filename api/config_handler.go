package api

import (
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/seenimoa/cotscope/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config     map[string]any `json:"config"`
	ConfigFile string         `json:"config_file,omitempty"` // path to the active config file
}

// handleGetConfig returns the running configuration with secrets masked.
// Keys use the same names as the YAML file.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	view, err := configView(s.cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:     view,
			ConfigFile: s.cfg.Source,
		},
	})
}

// handleGetConfigKeys returns the status of the optional credentials.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	keys := config.CheckAPIKeys(s.cfg)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    keys,
	})
}

// configView round-trips the redacted config through YAML so the response
// carries file key names and human-readable durations.
func configView(cfg *config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var view map[string]any
	if err := yaml.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return view, nil
}
