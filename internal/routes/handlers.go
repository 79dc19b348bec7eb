package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/quality"
	"github.com/bohemiyan/grc-rbac/workflow"
)

type handler struct {
	rbac     *rbac.RBACService
	workflow *workflow.Service
	health   func(ctx context.Context) error
	logger   *zap.SugaredLogger
}

type permissionsResponse struct {
	UserID          string            `json:"user_id"`
	TenantID        string            `json:"tenant_id"`
	IsPlatformAdmin bool              `json:"is_platform_admin"`
	Permissions     []rbac.Permission `json:"permissions"`
	Modules         []rbac.Module     `json:"modules"`
}

type evidenceRequest struct {
	Role            workflow.AssessmentRole `json:"role"`
	Comments        string                  `json:"comments"`
	Attachments     []string                `json:"attachments"`
	ExpectedVersion int64                   `json:"expected_version"`
}

func (r evidenceRequest) evidence() workflow.Evidence {
	return workflow.Evidence{Comments: r.Comments, Attachments: r.Attachments}
}

type transitionRequest struct {
	evidenceRequest
	Target workflow.Status `json:"target"`
}

type phaseRequest struct {
	evidenceRequest
	Target workflow.Phase `json:"target"`
}

type createRequest struct {
	Title       string                             `json:"title"`
	Assignments map[workflow.AssessmentRole]string `json:"assignments"`
}

type metricsRequest struct {
	Role            workflow.AssessmentRole `json:"role"`
	Metrics         quality.Metrics         `json:"metrics"`
	ExpectedVersion int64                   `json:"expected_version"`
}

type assignRequest struct {
	Role            workflow.AssessmentRole `json:"role"`
	UserID          string                  `json:"user_id"`
	ExpectedVersion int64                   `json:"expected_version"`
}

func (h *handler) healthz(c *fiber.Ctx) error {
	if h.health != nil {
		if err := h.health(c.UserContext()); err != nil {
			h.logger.Warnw("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) myPermissions(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	return c.JSON(toPermissionsResponse(res))
}

func (h *handler) switchTenant(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body struct {
		TenantID string `json:"tenant_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.TenantID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
	}

	next, err := h.rbac.SwitchTenant(c.UserContext(), res.UserID, body.TenantID)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(toPermissionsResponse(next))
}

func (h *handler) listModules(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	tenant := c.Params("tenant")
	if !res.IsPlatformAdmin && res.TenantID != tenant {
		return fiber.NewError(fiber.StatusForbidden, "cannot inspect another tenant")
	}

	rows, err := h.rbac.ListTenantModules(c.UserContext(), tenant)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(rows)
}

func (h *handler) setModule(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.BodyParser(&body); err != nil || body.Enabled == nil {
		return fiber.NewError(fiber.StatusBadRequest, "enabled is required")
	}

	tenant := c.Params("tenant")
	if !res.IsPlatformAdmin && res.TenantID != tenant {
		return fiber.NewError(fiber.StatusForbidden, "cannot change another tenant")
	}
	module := rbac.Module(c.Params("module"))
	if err := h.rbac.SetModuleEnabled(c.UserContext(), tenant, module, *body.Enabled, res.UserID); err != nil {
		return h.fail(err)
	}
	return c.JSON(fiber.Map{"tenant_id": tenant, "module": module, "enabled": *body.Enabled})
}

func (h *handler) listAssessments(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	list, err := h.workflow.List(c.UserContext(), res.TenantID, workflow.Status(c.Query("status")))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(list)
}

func (h *handler) createAssessment(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body createRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	a, err := h.workflow.Create(c.UserContext(), workflow.ActorFrom(res, workflow.RoleOwner), body.Title, body.Assignments)
	if err != nil {
		return h.fail(err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (h *handler) getAssessment(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	a, err := h.workflow.Get(c.UserContext(), res.TenantID, c.Params("id"))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(a)
}

func (h *handler) transition(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body transitionRequest
	if err := c.BodyParser(&body); err != nil || body.Target == "" || body.Role == "" {
		return fiber.NewError(fiber.StatusBadRequest, "target and role are required")
	}

	result, err := h.workflow.Transition(c.UserContext(), res.TenantID, c.Params("id"), workflow.TransitionRequest{
		Target:          body.Target,
		Actor:           workflow.ActorFrom(res, body.Role),
		Evidence:        body.evidence(),
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		return h.fail(err)
	}
	return respondResult(c, result)
}

func (h *handler) advancePhase(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body phaseRequest
	if err := c.BodyParser(&body); err != nil || body.Target == "" || body.Role == "" {
		return fiber.NewError(fiber.StatusBadRequest, "target and role are required")
	}

	result, err := h.workflow.AdvancePhase(c.UserContext(), res.TenantID, c.Params("id"), workflow.PhaseRequest{
		Target:          body.Target,
		Actor:           workflow.ActorFrom(res, body.Role),
		Evidence:        body.evidence(),
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		return h.fail(err)
	}
	return respondResult(c, result)
}

func (h *handler) resume(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body evidenceRequest
	if err := c.BodyParser(&body); err != nil || body.Role == "" {
		return fiber.NewError(fiber.StatusBadRequest, "role is required")
	}

	result, err := h.workflow.Resume(c.UserContext(), res.TenantID, c.Params("id"),
		workflow.ActorFrom(res, body.Role), body.evidence(), body.ExpectedVersion)
	if err != nil {
		return h.fail(err)
	}
	return respondResult(c, result)
}

func (h *handler) updateMetrics(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body metricsRequest
	if err := c.BodyParser(&body); err != nil || body.Role == "" {
		return fiber.NewError(fiber.StatusBadRequest, "role and metrics are required")
	}

	a, err := h.workflow.UpdateMetrics(c.UserContext(), res.TenantID, c.Params("id"),
		workflow.ActorFrom(res, body.Role), body.Metrics, body.ExpectedVersion)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(a)
}

func (h *handler) assignRole(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	var body assignRequest
	if err := c.BodyParser(&body); err != nil || body.Role == "" || body.UserID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "role and user_id are required")
	}

	a, err := h.workflow.AssignRole(c.UserContext(), res.TenantID, c.Params("id"),
		workflow.ActorFrom(res, body.Role), workflow.AssessmentRole(c.Params("role")), body.UserID, body.ExpectedVersion)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(a)
}

func (h *handler) quality(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	control, err := h.workflow.Quality(c.UserContext(), res.TenantID, c.Params("id"))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(control)
}

func (h *handler) auditTrail(c *fiber.Ctx) error {
	res, _ := rbac.ResolutionFrom(c)
	logs, err := h.workflow.AuditTrail(c.UserContext(), res.TenantID, c.Params("id"))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(logs)
}

func toPermissionsResponse(res rbac.Resolution) permissionsResponse {
	return permissionsResponse{
		UserID:          res.UserID,
		TenantID:        res.TenantID,
		IsPlatformAdmin: res.IsPlatformAdmin,
		Permissions:     res.Permissions.Slice(),
		Modules:         res.VisibleModules.Slice(),
	}
}

func respondResult(c *fiber.Ctx, result *workflow.TransitionResult) error {
	if result.Success {
		return c.JSON(result)
	}
	var kind workflow.ErrorKind
	if len(result.Errors) > 0 {
		kind = result.Errors[0].Kind
	}
	return c.Status(statusForKind(kind)).JSON(result)
}

func statusForKind(kind workflow.ErrorKind) int {
	switch kind {
	case workflow.KindInsufficientRole:
		return fiber.StatusForbidden
	case workflow.KindConcurrentModification:
		return fiber.StatusConflict
	case workflow.KindInvalidIdentity:
		return fiber.StatusUnauthorized
	}
	return fiber.StatusUnprocessableEntity
}

// fail maps service errors to HTTP errors. Unexpected errors are logged and hidden.
func (h *handler) fail(err error) error {
	var rejection *workflow.RejectionError
	switch {
	case errors.As(err, &rejection):
		return fiber.NewError(statusForKind(rejection.Kind()), rejection.Error())
	case errors.Is(err, rbac.ErrNotFound), errors.Is(err, workflow.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrInvalidInput), errors.Is(err, rbac.ErrUnknownModule), errors.Is(err, rbac.ErrUnknownRole):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrNotTenantMember), errors.Is(err, rbac.ErrPermissionDenied), errors.Is(err, workflow.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrAssessmentClosed):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	h.logger.Errorw("request failed", "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, "internal error")
}

// ErrorHandler renders errors as JSON for the fiber app config.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
