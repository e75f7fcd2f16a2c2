package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/mssola/user_agent"
)

const (
	deviceDesktop = "desktop"
	deviceMobile  = "mobile"
	deviceTablet  = "tablet"
	deviceBot     = "bot"
	deviceUnknown = "unknown"
)

// deviceFromRequest derives token device metadata from the User-Agent header.
func deviceFromRequest(r *http.Request) authflow.Device {
	raw := r.UserAgent()
	if strings.TrimSpace(raw) == "" {
		return authflow.Device{Type: deviceUnknown}
	}

	ua := user_agent.New(raw)
	browser, _ := ua.Browser()
	osName := ua.OSInfo().Name

	lower := strings.ToLower(raw)
	deviceType := deviceDesktop
	switch {
	case strings.Contains(lower, "tablet") || strings.Contains(lower, "ipad"):
		deviceType = deviceTablet
	case ua.Mobile():
		deviceType = deviceMobile
	case ua.Bot():
		deviceType = deviceBot
	}

	return authflow.Device{Type: deviceType, OS: osName, Browser: browser}
}

func withDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authflow.WithDevice(r.Context(), deviceFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
