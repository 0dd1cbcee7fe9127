package middleware

import (
	"net"
	"net/http"
	"strings"

	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ClientIP returns the last X-Forwarded-For hop, which is the address seen by
// our own proxy, or the connection's remote address when the header is absent.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
			return last
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SafeIPsMiddleware only admits requests from the listed addresses.
// An empty list admits everyone.
func SafeIPsMiddleware(safeIPs []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(safeIPs))
	for _, ip := range safeIPs {
		allowed[strings.TrimSpace(ip)] = struct{}{}
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		ip := ClientIP(c.Request)
		if _, ok := allowed[ip]; !ok {
			utils.LogWarn("Request from address outside SAFE_IPS", map[string]interface{}{
				"ip":   ip,
				"path": c.Request.URL.Path,
			})
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Address not allowed", ""))
			return
		}
		c.Next()
	}
}
