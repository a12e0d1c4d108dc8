package api

import (
	"net/http"
	"time"

	"vrptabu/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":           s.Config.Port,
			"logLevel":       s.Config.LogLevel,
			"rateRps":        s.Config.RateRPS,
			"rateBurst":      s.Config.RateBurst,
			"seeds":          s.Config.Seeds,
			"search":         s.Config.Search(),
			"hasDatabaseUrl": s.Config.DatabaseURL != "",
			"hasSqlitePath":  s.Config.SQLitePath != "",
			"hasRedisUrl":    s.Config.RedisURL != "",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
