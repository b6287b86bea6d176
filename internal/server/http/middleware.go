package httpserver

import (
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/errs"
)

const usernameKey = "borga.username"

// Logging logs one line per request with metadata only, never bodies.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.String("error", err.Error()))
		}
		log.Info("http", fields...)
	}
}

// Recover turns a handler panic into a FAILURE response.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				respondError(c, errs.Failure("internal"))
			}
		}()
		c.Next()
	}
}

// requireUser resolves the bearer token and stores the username for the handlers.
func (s *Server) requireUser(c *gin.Context) {
	username, err := s.auth.Username(c.Request.Context(), bearerToken(c.GetHeader("Authorization")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(usernameKey, username)
	c.Next()
}

func currentUser(c *gin.Context) string { return c.GetString(usernameKey) }
