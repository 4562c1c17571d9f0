// Package config serves the read-only view of the running configuration and
// the provider switch.
package config

import (
	"encoding/json"
	"net/http"
	"strings"

	"finstory/pkg/core/agent"
	appconfig "finstory/pkg/core/config"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

type Response struct {
	ActiveProvider string                                   `json:"active_provider"`
	Available      []string                                 `json:"available"`
	Personas       map[models.Persona]models.PersonaProfile `json:"personas"`
	Thresholds     risk.Thresholds                          `json:"thresholds"`
	Insight        appconfig.InsightConfig                  `json:"insight"`
}

type SwitchRequest struct {
	Provider string `json:"provider"`
}

type SwitchResponse struct {
	ActiveProvider string `json:"active_provider"`
}

// Handler holds dependencies for config endpoints. AgentMgr is nil when no
// external provider is wired.
type Handler struct {
	AgentMgr *agent.Manager
	App      *appconfig.Config
}

// NewHandler creates a new config handler
func NewHandler(agentMgr *agent.Manager, app *appconfig.Config) *Handler {
	return &Handler{
		AgentMgr: agentMgr,
		App:      app,
	}
}

func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Available:  []string{},
		Personas:   h.App.Personas,
		Thresholds: h.App.Thresholds,
		Insight:    h.App.Insight,
	}
	if h.AgentMgr != nil {
		resp.ActiveProvider = h.AgentMgr.GetActiveProvider()
		resp.Available = h.AgentMgr.ProviderNames()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	if h.AgentMgr == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no external provider configured"})
		return
	}

	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if err := h.AgentMgr.SetGlobalProvider(name); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SwitchResponse{ActiveProvider: name})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
