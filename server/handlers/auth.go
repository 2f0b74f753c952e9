package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Login redirects to the identity provider
func (h *Handlers) Login(c *gin.Context) {
	if !h.auth.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
		return
	}

	state := h.auth.SetState(c.Writer)
	c.Redirect(http.StatusTemporaryRedirect, h.auth.Provider().AuthCodeURL(state))
}

// Callback completes the provider login and opens a session
func (h *Handlers) Callback(c *gin.Context) {
	if !h.auth.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
		return
	}

	if !h.auth.CheckState(c.Writer, c.Request, c.Query("state")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state parameter"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code not found"})
		return
	}

	user, token, err := h.auth.Provider().Exchange(c.Request.Context(), code)
	if err != nil {
		log.Printf("OAuth exchange error: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to complete login"})
		return
	}

	h.auth.SetSession(c.Writer, *user, token)
	log.Printf("User logged in: %s (%s)", user.ID, user.Email)

	c.Redirect(http.StatusSeeOther, "/")
}

// Logout closes the caller's session and wizard state
func (h *Handlers) Logout(c *gin.Context) {
	if sess, ok := h.auth.SessionFromRequest(c.Request); ok {
		h.sessions.Drop(sess.User.ID)
	}
	h.auth.ClearSession(c.Writer, c.Request)
	c.Status(http.StatusNoContent)
}
