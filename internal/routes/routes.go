package routes

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/workflow"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	RBAC     *rbac.RBACService
	Workflow *workflow.Service
	// Authenticator sets rbac.LocalUserID for authenticated callers, see GatewayAuth.
	Authenticator fiber.Handler
	// Health reports whether backing stores are reachable. Nil always reports healthy.
	Health func(ctx context.Context) error
	Logger *zap.SugaredLogger
}

// Setup registers every route on app.
func Setup(app *fiber.App, deps Deps) {
	if deps.RBAC == nil || deps.Workflow == nil || deps.Authenticator == nil {
		panic("routes: RBAC, workflow and authenticator are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	h := &handler{rbac: deps.RBAC, workflow: deps.Workflow, health: deps.Health, logger: deps.Logger}

	app.Get("/healthz", h.healthz)

	api := app.Group("/api/v1", deps.Authenticator, deps.RBAC.ResolveMiddleware())

	api.Get("/me/permissions", h.myPermissions)
	api.Post("/me/tenant", h.switchTenant)

	tenants := api.Group("/tenants/:tenant")
	tenants.Get("/modules", h.listModules)
	tenants.Put("/modules/:module", deps.RBAC.RequirePermission(rbac.PermManageModules), h.setModule)

	assessments := api.Group("/assessments", deps.RBAC.RequireModule(rbac.ModuleAssessments))
	assessments.Get("/", h.listAssessments)
	assessments.Post("/", deps.RBAC.RequirePermission(rbac.PermWrite), h.createAssessment)
	assessments.Get("/:id", h.getAssessment)
	assessments.Post("/:id/transitions", deps.RBAC.RequirePermission(rbac.PermAssessmentTransition), h.transition)
	assessments.Post("/:id/phase", deps.RBAC.RequirePermission(rbac.PermAssessmentTransition), h.advancePhase)
	assessments.Post("/:id/resume", deps.RBAC.RequirePermission(rbac.PermAssessmentTransition), h.resume)
	assessments.Put("/:id/metrics", deps.RBAC.RequirePermission(rbac.PermWrite), h.updateMetrics)
	assessments.Put("/:id/assignments/:role", deps.RBAC.RequirePermission(rbac.PermWrite), h.assignRole)
	assessments.Get("/:id/quality", h.quality)
	assessments.Get("/:id/audit", deps.RBAC.RequirePermission(rbac.PermViewAuditLog), h.auditTrail)
}
