package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/auth"
	"github.com/allclear/allclear/backend/go-services/internal/authz"
	"github.com/allclear/allclear/backend/go-services/internal/models"
	"github.com/allclear/allclear/backend/go-services/internal/sessions"
	"github.com/allclear/allclear/backend/go-services/pkg/logger"
	"github.com/allclear/allclear/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

const (
	PathAuth     = "/peoples/auth"
	PathConfirm  = "/peoples/confirm"
	PathRegister = "/peoples/register"
)

// Challenge issues and confirms login tokens.
type Challenge interface {
	IssueAuthToken(ctx context.Context, phone string) (string, error)
	Confirm(ctx context.Context, phone, token string) error
}

// People is the person directory.
type People interface {
	FindByPhone(ctx context.Context, phone string) (*models.Person, error)
	Register(ctx context.Context, reg *models.Registration, name string) (*models.Person, error)
	Rename(ctx context.Context, p *models.Person, name string) (*models.Person, error)
}

// AuthRequest starts a login by texting a token to Phone.
type AuthRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// ConfirmRequest exchanges a texted token for a session. Known phones get a
// person session; unknown phones get a registration session carrying the
// declared flags.
type ConfirmRequest struct {
	Phone        string `json:"phone" binding:"required"`
	Token        string `json:"token" binding:"required"`
	RememberMe   bool   `json:"rememberMe"`
	BeenTested   bool   `json:"beenTested"`
	HaveSymptoms bool   `json:"haveSymptoms"`
}

// RegisterRequest turns the bound registration session into a person session.
type RegisterRequest struct {
	Name       string `json:"name" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type SelfRequest struct {
	Name string `json:"name" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	challenge Challenge
	people    People
	sessions  *sessions.Store
	gate      *authz.Gate
}

func NewAuthHandler(ch Challenge, p People, s *sessions.Store, g *authz.Gate) *AuthHandler {
	return &AuthHandler{challenge: ch, people: p, sessions: s, gate: g}
}

// Register routes
func (h *AuthHandler) Register(rg gin.IRoutes) {
	rg.POST(PathAuth, h.Auth)
	rg.POST(PathConfirm, h.Confirm)
	rg.POST(PathRegister, h.RegisterPerson)
	rg.PUT("/peoples/self", h.UpdateSelf)
	rg.GET("/sessions", h.CurrentSession)
	rg.DELETE("/sessions", h.Logout)
	rg.GET("/sessions/search", h.SearchSessions)
}

func (h *AuthHandler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.challenge.IssueAuthToken(c.Request.Context(), req.Phone); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": auth.NormalizePhone(req.Phone)})
}

func (h *AuthHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	phone := auth.NormalizePhone(req.Phone)
	if err := h.challenge.Confirm(ctx, phone, req.Token); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	person, err := h.people.FindByPhone(ctx, phone)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	subject := sessions.RegistrationSubject(&models.Registration{
		Phone:        phone,
		BeenTested:   req.BeenTested,
		HaveSymptoms: req.HaveSymptoms,
	})
	if person != nil {
		subject = sessions.PersonSubject(person)
	}
	s, err := h.sessions.Create(ctx, subject, req.RememberMe)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	logger.Debugf("confirmed %s session %s", s.Kind(), s.ID)
	c.JSON(http.StatusOK, s)
}

func (h *AuthHandler) RegisterPerson(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	cur := authz.Current(ctx)
	if !cur.IsRegistration() {
		middleware.AbortWithError(c, apperr.NotAuthenticated("Requires a Registration Session."))
		return
	}
	person, err := h.people.Register(ctx, cur.Registration, req.Name)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	s, err := h.gate.Promote(ctx, req.RememberMe, person)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *AuthHandler) UpdateSelf(c *gin.Context) {
	var req SelfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	me, err := h.gate.RequirePerson(ctx)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	updated, err := h.people.Rename(ctx, me, req.Name)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if _, err := h.sessions.UpdateSubject(ctx, authz.Current(ctx).ID, sessions.PersonSubject(updated)); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *AuthHandler) CurrentSession(c *gin.Context) {
	s := authz.Current(c.Request.Context())
	if s == nil {
		middleware.AbortWithError(c, sessions.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.gate.RemoveCurrent(c.Request.Context()); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SearchSessions lists sessions for super-admins, one store cursor step per call.
func (h *AuthHandler) SearchSessions(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.gate.RequireSuper(ctx); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	f := sessions.Filter{IDPrefix: c.Query("prefix")}
	if v := c.Query("cursor"); v != "" {
		cur, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			middleware.AbortWithError(c, apperr.Invalid("cursor", "must be a non-negative integer"))
			return
		}
		f.Cursor = cur
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.AbortWithError(c, apperr.Invalid("pageSize", "must be a positive integer"))
			return
		}
		f.PageSize = n
	}
	page, err := h.sessions.Search(ctx, f)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": page.Sessions, "next": page.Next})
}
