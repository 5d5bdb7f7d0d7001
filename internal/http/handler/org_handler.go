package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
)

// OrgHandler serves organization and membership endpoints.
type OrgHandler struct {
	Orgs    *service.OrgService
	Cookies CookieJar
	Logger  *zap.Logger
}

// NewOrgHandler wires the organization endpoints.
func NewOrgHandler(orgs *service.OrgService, cfg config.Config, logger *zap.Logger) *OrgHandler {
	return &OrgHandler{Orgs: orgs, Cookies: NewCookieJar(cfg), Logger: logger}
}

type createOrgRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create makes a new organization owned by the caller and makes it active.
// It only needs an authenticated user, since new users have no org yet.
func (h *OrgHandler) Create(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req createOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required.")
		return
	}
	created, err := h.Orgs.CreateOrganization(c.Request.Context(), principal.User.ID, req.Name)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.Cookies.SetOrg(c, created.ID)
	c.JSON(http.StatusCreated, gin.H{"organization": toOrganization(created), "role": domain.RoleOwner})
}

type selectOrgRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
}

// SelectActive sets the active-organization cookie after checking membership.
func (h *OrgHandler) SelectActive(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req selectOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "organization_id is required.")
		return
	}
	membership, err := h.Orgs.SelectActive(c.Request.Context(), principal.User.ID, req.OrganizationID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.Cookies.SetOrg(c, membership.OrganizationID)
	c.JSON(http.StatusOK, gin.H{"organization": toOrganization(membership.Organization), "role": membership.Role})
}

// ListMembers lists the active org's members.
func (h *OrgHandler) ListMembers(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	members, err := h.Orgs.ListMembers(c.Request.Context(), auth)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMember(m))
	}
	c.JSON(http.StatusOK, gin.H{"members": out})
}

type memberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role" binding:"required"`
}

// AddMember adds an existing user to the active org by email.
func (h *OrgHandler) AddMember(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "email and role are required.")
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		badRequest(c, "role must be admin or member.")
		return
	}
	member, err := h.Orgs.AddMember(c.Request.Context(), auth, req.Email, role)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, toMember(member))
}

// UpdateMember changes a member's role. The owner is immutable.
func (h *OrgHandler) UpdateMember(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required.")
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		badRequest(c, "role must be admin or member.")
		return
	}
	if err := h.Orgs.UpdateMemberRole(c.Request.Context(), auth, c.Param("userId"), role); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a member, or lets a member leave.
func (h *OrgHandler) RemoveMember(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	if err := h.Orgs.RemoveMember(c.Request.Context(), auth, c.Param("userId")); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
