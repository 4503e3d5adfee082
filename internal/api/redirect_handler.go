package api

import (
	"net/http"
	"net/url"

	"github.com/bee-cms/bee/internal/service"
	"github.com/bee-cms/bee/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RedirectHandler sends visitors of old permalinks to imported posts
type RedirectHandler struct {
	services *service.Services
	validate *validation.Validator
	log      zerolog.Logger
}

// NewRedirectHandler creates a new RedirectHandler
func NewRedirectHandler(services *service.Services, validate *validation.Validator, log zerolog.Logger) *RedirectHandler {
	return &RedirectHandler{
		services: services,
		validate: validate,
		log:      log.With().Str("handler", "redirect").Logger(),
	}
}

// Redirect handles GET /legacy?url=...
func (h *RedirectHandler) Redirect(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}
	c.Redirect(http.StatusMovedPermanently, target)
}

// Lookup handles GET /v1/legacy-urls?url=...
func (h *RedirectHandler) Lookup(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": c.Query("url"), "permalink": target})
}

// resolve writes an error response and returns false when the url query
// parameter does not name an imported post.
func (h *RedirectHandler) resolve(c *gin.Context) (string, bool) {
	raw := c.Query("url")
	if verr := h.validate.Var("url", raw, "required,url"); verr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "details": verr})
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url: must be an absolute URL"})
		return "", false
	}

	target, err := h.services.Links.Resolve(c.Request.Context(), u.Host, u.Path)
	if err != nil {
		h.log.Error().Err(err).Str("url", raw).Msg("Failed to resolve legacy url")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve url"})
		return "", false
	}
	if target == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no imported post at that address"})
		return "", false
	}

	if u.RawQuery != "" || u.Fragment != "" {
		if t, err := url.Parse(target); err == nil {
			t.RawQuery, t.Fragment = u.RawQuery, u.Fragment
			target = t.String()
		}
	}
	return target, true
}
