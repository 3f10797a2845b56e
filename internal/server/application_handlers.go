package server

import (
	"strings"

	"schoolreg/internal/models"
	"schoolreg/internal/repository"
	"schoolreg/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SubmitApplication handles POST /api/applications
// @Summary Submit an admission application
// @Description Validates the intake form and stores it as a pending application
// @Tags applications
// @Accept json
// @Produce json
// @Param request body object true "Admission form"
// @Success 201 {object} models.Application
// @Failure 400 {object} models.ErrorResponse
// @Router /applications [post]
func (s *Server) SubmitApplication(c *fiber.Ctx) error {
	var raw map[string]any
	if err := c.BodyParser(&raw); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	app, err := s.applications.Submit(c.UserContext(), raw)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(app)
}

// ListApplications handles GET /api/applications
// @Summary List applications
// @Description Paginated applications, newest first, optionally filtered by status
// @Tags applications
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param limit query int false "Page size" default(25)
// @Param offset query int false "Offset"
// @Success 200 {object} object{applications=[]models.Application,total=int,limit=int,offset=int}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /applications [get]
func (s *Server) ListApplications(c *fiber.Ctx) error {
	page := parsePagination(c, 25)
	filter := repository.ApplicationFilter{
		Status: models.ApplicationStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	apps, total, err := s.applications.List(c.UserContext(), filter, callerFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"applications": apps,
		"total":        total,
		"limit":        page.Limit,
		"offset":       page.Offset,
	})
}

// GetApplication handles GET /api/applications/:id
// @Summary Get an application
// @Tags applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} models.Application
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /applications/{id} [get]
func (s *Server) GetApplication(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	app, err := s.applications.Get(c.UserContext(), id, callerFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(app)
}

// ApproveApplication handles POST /api/applications/:id/approve
// @Summary Approve an application
// @Description Provisions the student record and the parent and student accounts
// @Tags applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} service.ApprovalResult
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /applications/{id}/approve [post]
func (s *Server) ApproveApplication(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.applications.Approve(c.UserContext(), id, callerFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// RejectApplication handles POST /api/applications/:id/reject
// @Summary Reject an application
// @Tags applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param request body object{reason=string} false "Rejection reason"
// @Success 200 {object} models.Application
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /applications/{id}/reject [post]
func (s *Server) RejectApplication(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	app, err := s.applications.Reject(c.UserContext(), id, req.Reason, callerFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(app)
}

// DeleteApplication handles DELETE /api/applications/:id
// @Summary Delete an application
// @Tags applications
// @Param id path string true "Application ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /applications/{id} [delete]
func (s *Server) DeleteApplication(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.applications.Delete(c.UserContext(), id, callerFrom(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddApplicationDocument handles POST /api/applications/:id/documents
// @Summary Attach document metadata
// @Description Anonymous submitters may attach while the application is pending
// @Tags applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param request body object{type=string,fileName=string,fileUrl=string,fileSize=int,mimeType=string} true "Document"
// @Success 201 {object} models.ApplicationDocument
// @Failure 400 {object} models.ErrorResponse
// @Router /applications/{id}/documents [post]
func (s *Server) AddApplicationDocument(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Type     string `json:"type"`
		FileName string `json:"fileName"`
		FileURL  string `json:"fileUrl"`
		FileSize int64  `json:"fileSize"`
		MimeType string `json:"mimeType"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	doc, err := s.applications.AddDocument(c.UserContext(), id, service.DocumentInput{
		Type:     req.Type,
		FileName: req.FileName,
		FileURL:  req.FileURL,
		FileSize: req.FileSize,
		MimeType: req.MimeType,
	}, callerFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// RemirrorApplication handles POST /api/applications/:id/mirror
// @Summary Retry the student-records copy
// @Tags applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} models.Student
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /applications/{id}/mirror [post]
func (s *Server) RemirrorApplication(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	student, err := s.applications.Remirror(c.UserContext(), id, callerFrom(c))
	if err != nil {
		if statusForError(err) == fiber.StatusInternalServerError {
			return models.RespondWithError(c, fiber.StatusBadGateway, err)
		}
		return respondError(c, err)
	}
	return c.JSON(student)
}

// ReconcileMirrors handles POST /api/admin/reconcile-mirrors
// @Summary Re-mirror students missing a student-records id
// @Tags admin
// @Produce json
// @Param limit query int false "Maximum students" default(50)
// @Success 200 {object} object{attempted=int,mirrored=int,failed=object}
// @Security BearerAuth
// @Router /admin/reconcile-mirrors [post]
func (s *Server) ReconcileMirrors(c *fiber.Ctx) error {
	page := parsePagination(c, 50)

	report, err := s.applications.ReconcileMirrors(c.UserContext(), page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"attempted": report.Attempted,
		"mirrored":  report.Mirrored,
		"failed":    report.Failed,
	})
}

// AccessByCode handles POST /api/auth/code
// @Summary Sign in with an application access code
// @Description Exchanges the 8-character code of an approved application for a student session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{code=string} true "Access code"
// @Success 200 {object} service.AccessGrant
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/code [post]
func (s *Server) AccessByCode(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	grant, err := s.applications.AccessByCode(c.UserContext(), req.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(grant)
}
