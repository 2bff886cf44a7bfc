package api

import (
	"net/http"

	"github.com/seenimoa/stockpilot/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Symbols   []string           `json:"symbols"`
	Horizon   int                `json:"horizon"`
	Provider  string             `json:"provider"`
	Fallbacks []string           `json:"fallbacks,omitempty"`
	Model     string             `json:"model"`
	Analysts  map[string]bool    `json:"analysts"`
	Store     string             `json:"store"`
	Schedule  string             `json:"schedule"`
	Timezone  string             `json:"timezone,omitempty"`
	Reports   bool               `json:"reports"`
	Keys      []config.KeyStatus `json:"keys"`
}

// handleGetConfig returns a summary of the running configuration. Secrets
// appear only as masked key statuses.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    configSummary(s.cfg),
	})
}

func configSummary(cfg *config.Config) ConfigResponse {
	return ConfigResponse{
		Symbols:   cfg.Symbols,
		Horizon:   cfg.Forecast.Horizon,
		Provider:  cfg.LLM.Primary,
		Fallbacks: cfg.LLM.Fallbacks,
		Model:     cfg.LLM.Model,
		Analysts: map[string]bool{
			"news":         cfg.Analysts.News.Enabled,
			"statistical":  cfg.Analysts.Statistical.Enabled,
			"fundamentals": cfg.Analysts.Fundamentals.Enabled,
		},
		Store:    cfg.Store.Backend,
		Schedule: cfg.Schedule.Cron,
		Timezone: cfg.Schedule.Timezone,
		Reports:  cfg.Report.Enabled,
		Keys:     config.CheckAPIKeys(cfg),
	}
}
