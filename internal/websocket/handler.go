package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/memberqr/internal/auth"
)

// HandleWebSocket upgrades an admin request and streams roster notifications
// to it. Cross-origin upgrades are refused unless originPatterns allow them.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, auth.AdminUsername(r.Context())).Run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
	}
}
