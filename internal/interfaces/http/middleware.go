package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

const (
	ctxSession = "session"
	ctxTicket  = "ticket"
)

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// authMiddleware resolves the bearer session and stores it in the request context.
// Browsers cannot set headers on websocket upgrades, so access_token is accepted too.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}

		if s.deps.Sessions == nil {
			abort(c, http.StatusUnauthorized, session.ErrUnauthenticated.Error())
			return
		}
		sess, err := s.deps.Sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrUnauthenticated) {
				s.logger.Error("Failed to resolve session", "error", err)
			}
			abort(c, http.StatusUnauthorized, session.ErrUnauthenticated.Error())
			return
		}

		c.Set(ctxSession, sess)
		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

// callbackAuthMiddleware checks the shared OCR callback token
func (s *Server) callbackAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		expected := s.config.CallbackToken
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			abort(c, http.StatusUnauthorized, "invalid callback token")
			return
		}
		c.Next()
	}
}

// ticketScopeMiddleware loads :id and hides tickets of other organizations
func (s *Server) ticketScopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			abort(c, http.StatusBadRequest, "no ticket selected")
			return
		}
		if s.deps.Lookup == nil {
			c.Next()
			return
		}

		ticket, err := s.deps.Lookup.GetByID(c.Request.Context(), id)
		if err != nil {
			s.logger.Error("Failed to load ticket", "ticket_id", id, "error", err)
			abort(c, http.StatusInternalServerError, "failed to load ticket")
			return
		}
		sess := currentSession(c)
		if ticket == nil || sess == nil || ticket.OrganizationID != sess.OrganizationID {
			abort(c, http.StatusNotFound, "ticket not found")
			return
		}
		// drivers only reach their own tickets
		if sess.Role == entity.RoleDriver && ticket.DriverID != sess.UserID {
			abort(c, http.StatusNotFound, "ticket not found")
			return
		}

		c.Set(ctxTicket, ticket)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func currentSession(c *gin.Context) *entity.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*entity.Session)
	return sess
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}
