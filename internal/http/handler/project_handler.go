package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/sandbox"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
)

// ProjectHandler serves project CRUD, bulk sync and sandbox launch.
type ProjectHandler struct {
	Projects *service.ProjectService
	Sandbox  *sandbox.Service
	Logger   *zap.Logger
}

// NewProjectHandler wires the project endpoints.
func NewProjectHandler(projects *service.ProjectService, sandboxes *sandbox.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{Projects: projects, Sandbox: sandboxes, Logger: logger}
}

type projectRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GitRemote string `json:"git_remote"`
	Branch    string `json:"branch"`
}

func (r projectRequest) input() service.ProjectInput {
	return service.ProjectInput{ID: r.ID, Name: r.Name, GitRemote: r.GitRemote, Branch: r.Branch}
}

// List returns the active org's projects.
func (h *ProjectHandler) List(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	projects, err := h.Projects.ListProjects(c.Request.Context(), auth)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": toProjects(projects)})
}

// Get returns one project. Projects of other orgs are 404.
func (h *ProjectHandler) Get(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	project, err := h.Projects.GetProject(c.Request.Context(), auth, c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, toProject(project))
}

// Create adds a project.
func (h *ProjectHandler) Create(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid project payload.")
		return
	}
	in := req.input()
	in.ID = ""
	project, err := h.Projects.CreateProject(c.Request.Context(), auth, in)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, toProject(project))
}

// Update changes the non-empty fields of a project.
func (h *ProjectHandler) Update(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid project payload.")
		return
	}
	in := req.input()
	in.ID = c.Param("id")
	project, err := h.Projects.UpdateProject(c.Request.Context(), auth, in)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, toProject(project))
}

// Delete removes a project and its stored secrets.
func (h *ProjectHandler) Delete(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	if err := h.Projects.DeleteProject(c.Request.Context(), auth, c.Param("id")); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type syncRequest struct {
	Projects []projectRequest `json:"projects" binding:"required"`
}

// Sync upserts a batch of projects in request order.
func (h *ProjectHandler) Sync(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "projects is required.")
		return
	}
	inputs := make([]service.ProjectInput, 0, len(req.Projects))
	for _, p := range req.Projects {
		inputs = append(inputs, p.input())
	}
	projects, err := h.Projects.SyncProjects(c.Request.Context(), auth, inputs)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": toProjects(projects)})
}

type launchRequest struct {
	Branch string `json:"branch"`
}

// LaunchSandbox assembles the project's credentials and starts a sandbox.
func (h *ProjectHandler) LaunchSandbox(c *gin.Context) {
	auth, ok := mustAuth(c)
	if !ok {
		return
	}
	project, err := h.Projects.GetProject(c.Request.Context(), auth, c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	var req launchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid launch payload.")
			return
		}
	}
	branch := req.Branch
	if branch == "" {
		branch = project.Branch
	}
	deployment, err := h.Sandbox.Launch(c.Request.Context(), sandbox.Request{
		OrgID:     project.OrganizationID,
		ProjectID: project.ID,
		UserID:    auth.User.ID,
		Branch:    branch,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusAccepted, deployment)
}
