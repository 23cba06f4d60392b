package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware guards a route whose matched chain carries the given
// requirements, outermost first.
//
// Browser navigations are redirected with 302. Clients that prefer JSON get
// 401 (sign in again) or 403 (not for this role) with the redirect target in
// the body.
func (g *Guard) Middleware(chain ...Requirement) gin.HandlerFunc {
	req := Merge(chain...)
	return func(c *gin.Context) {
		d := g.Authorize(c.Request.Context(), req, c.Request.URL.Path)
		if d.Action == ActionAllow {
			c.Request = c.Request.WithContext(WithSession(c.Request.Context(), d.Session))
			c.Next()
			return
		}

		if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
			status := http.StatusForbidden
			if d.Action == ActionRedirectLogin {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{"redirect": d.Target, "reason": d.Reason})
			return
		}
		c.Redirect(http.StatusFound, d.Target)
		c.Abort()
	}
}
