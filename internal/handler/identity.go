package handler

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sitepulse/internal/fingerprint"
	"github.com/sitepulse/internal/store"
)

const sessionIDKey = "sid"

// requestIdentity holds everything derived from the request headers.
type requestIdentity struct {
	headers   fingerprint.Headers
	visitorID string
}

func identify(c *gin.Context) requestIdentity {
	headers := fingerprint.FromRequest(c.Request)
	return requestIdentity{headers: headers, visitorID: fingerprint.Derive(headers)}
}

func (id requestIdentity) visitorInput(c *gin.Context) store.VisitorInput {
	return store.VisitorInput{
		VisitorID: id.visitorID,
		UserAgent: id.headers.UserAgent,
		IPAddress: id.headers.IP,
		Device:    fingerprint.ParseDevice(id.headers.UserAgent),
		Geo:       fingerprint.GeoFromHeaders(c.Request.Header),
	}
}

// feedbackFingerprint prefers the client supplied fingerprint header.
func (id requestIdentity) feedbackFingerprint(c *gin.Context) string {
	if supplied := strings.TrimSpace(c.GetHeader(fingerprint.HeaderFingerprint)); supplied != "" {
		return supplied
	}
	return id.visitorID
}

// ensureSessionID returns the cookie session id, creating one on first use. Without the
// sessions middleware it returns an empty string.
func ensureSessionID(c *gin.Context) string {
	if _, exists := c.Get(sessions.DefaultKey); !exists {
		return ""
	}

	session := sessions.Default(c)
	if id, ok := session.Get(sessionIDKey).(string); ok && strings.TrimSpace(id) != "" {
		return id
	}

	id := uuid.NewString()
	session.Set(sessionIDKey, id)
	if err := session.Save(); err != nil {
		c.Error(err)
	}
	return id
}
