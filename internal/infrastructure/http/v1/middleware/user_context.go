// Package middleware provides HTTP middleware for the stock ledger API.
package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// UserContext puts the caller identity set by the upstream gateway into the
// request context. The ledger records it as created_by; it does not
// authenticate.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader(HeaderUserID); uid != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{
				UserID: uid,
				Email:  c.GetHeader(HeaderUserEmail),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
