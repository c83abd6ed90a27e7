package api

import (
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/seenimoa/chartscout/internal/config"
)

// handleGetConfig returns the running configuration with secrets masked.
// The body is the same YAML `chartscout config show` prints, decoded into a
// generic map so it travels in the JSON envelope.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	out, err := config.Marshal(s.cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(out, &doc); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: doc})
}

// handleGetConfigKeys returns the status of the model credentials.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}
