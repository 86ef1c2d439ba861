package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"disputehub/internal/complexity"
	"disputehub/internal/domain"
	"disputehub/internal/engine"
	"disputehub/internal/engine/auth"
	"disputehub/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"strategy_locked"`
	Message string         `json:"message" example:"strategy is locked"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"case_id\":\"case-1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type out[T any] struct {
	Body T
}

func reply[T any](v T) *out[T] { return &out[T]{Body: v} }

type casePath struct {
	CaseID string `path:"case_id"`
}

// New returns an HTTP handler exposing the DisputeHub API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger.Named("auth")
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger.Named("http")))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}
	hcfg := huma.DefaultConfig("DisputeHub API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCases(group, cfg.Engine)
	registerStrategy(group, cfg.Engine)
	registerGate(group, cfg.Engine)
	registerEvidence(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerTimeline(group, cfg.Engine)
	registerComplexity(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrStrategyLocked):
		return newAPIError(http.StatusConflict, "strategy_locked", msg, nil)
	case errors.Is(err, engine.ErrCaseClosed):
		return newAPIError(http.StatusConflict, "case_closed", msg, nil)
	case errors.Is(err, engine.ErrCaseRestricted):
		return newAPIError(http.StatusConflict, "case_restricted", msg, nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, engine.ErrRetryNotAllowed):
		return newAPIError(http.StatusUnprocessableEntity, "retry_not_allowed", msg, nil)
	}
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must") || strings.Contains(lowered, "cannot be blank"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// loadCase returns the case when the caller owns it or is an admin.
func loadCase(ctx context.Context, e engine.Engine, caseID string) (domain.Case, auth.Actor, error) {
	actor, authErr := actorFromContext(ctx)
	if authErr != nil {
		return domain.Case{}, actor, authErr
	}
	c, err := e.GetCase(ctx, caseID)
	if err != nil {
		return c, actor, err
	}
	return c, actor, auth.CanAccessCase(actor, c)
}

func requireAdmin(ctx context.Context) error {
	actor, authErr := actorFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	return auth.RequireAdmin(actor)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>DisputeHub API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Open a case",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest
	}) (*out[domain.Case], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		opts := engine.CreateCaseOptions{UserID: actor.ID, Title: input.Body.Title}
		if input.Body.UserID != nil && *input.Body.UserID != actor.ID {
			if err := auth.RequireAdmin(actor); err != nil {
				return nil, handleError(err)
			}
			opts.UserID = *input.Body.UserID
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Email != nil {
			opts.UserEmail = *input.Body.Email
		}
		if input.Body.DisplayName != nil {
			opts.UserName = *input.Body.DisplayName
		}
		c, err := e.CreateCase(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" doc:"Admins only"`
		Status string `query:"status" enum:"ACTIVE,WAITING,CLOSED"`
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*out[listCases], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.CaseFilters{UserID: actor.ID, LifecycleStatus: input.Status, Limit: input.Limit}
		if actor.Admin {
			f.UserID = input.UserID
		}
		items, err := e.ListCases(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(listCases{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}",
		Summary:     "Get case",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[domain.Case], error) {
		c, _, err := loadCase(ctx, e, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/close",
		Summary:     "Close case",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CaseID string           `path:"case_id"`
		Body   CloseCaseRequest `required:"false"`
	}) (*out[domain.Case], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		c, err := e.CloseCase(ctx, input.CaseID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-case-restricted",
		Method:      http.MethodPut,
		Path:        "/cases/{case_id}/restricted",
		Summary:     "Restrict or release a case",
		Description: "Restricted cases never trigger the decision gate. Admin only.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Body   SetRestrictedRequest
	}) (*out[domain.Case], error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, handleError(err)
		}
		c, err := e.SetRestricted(ctx, input.CaseID, input.Body.Restricted)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-turn",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/turns",
		Summary:     "Process a conversation turn",
		Description: "Applies the strategy delta, checks the candidate response and runs the decision gate when the strategy became complete.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Body   TurnRequest
	}) (*out[engine.TurnResult], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		res, err := e.ProcessTurn(ctx, input.CaseID, engine.TurnInput{Delta: input.Body.Delta, Response: input.Body.Response})
		if err != nil {
			return nil, handleError(err)
		}
		res.Strategy = strategyResponse(res.Strategy)
		return reply(res), nil
	})
}

func registerStrategy(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-strategy",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/strategy",
		Summary:     "Get case strategy",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[domain.Strategy], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		s, err := e.GetStrategy(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(strategyResponse(s)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-strategy-delta",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}/strategy",
		Summary:     "Apply a strategy delta",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Body   domain.StrategyDelta
	}) (*out[domain.Strategy], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		s, err := e.ApplyStrategyDelta(ctx, input.CaseID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(strategyResponse(s)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-strategy",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/strategy/reset",
		Summary:     "Reset strategy",
		Description: "Clears the strategy, unlocks the case and removes its plan and documents. Admin only.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[domain.Case], error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, handleError(err)
		}
		c, err := e.ResetStrategy(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-completeness",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/completeness",
		Summary:     "Evaluate strategy completeness",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[TriggerResponse], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		report, err := e.Completeness(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(TriggerResponse{CaseID: input.CaseID, TriggerCheck: engine.TriggerCheck{
			ShouldTrigger: report.Complete,
			Completeness:  report,
		}}), nil
	})
}

func registerGate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-gate",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/gate",
		Summary:     "Should the decision gate trigger",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[TriggerResponse], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		tc, err := e.CheckTrigger(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(TriggerResponse{CaseID: input.CaseID, TriggerCheck: tc}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-gate",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/gate/execute",
		Summary:     "Run the decision gate",
		Description: "Locks the strategy, creates the document plan and generates documents. A gate that does not run reports executed=false with a reason.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[engine.GateResult], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		res, err := e.Execute(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

func registerEvidence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-evidence",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/evidence",
		Summary:       "Add evidence",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Body   AddEvidenceRequest
	}) (*out[domain.EvidenceItem], error) {
		_, actor, err := loadCase(ctx, e, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		item, err := e.AddEvidence(ctx, engine.EvidenceInput{
			CaseID:       input.CaseID,
			FileRef:      input.Body.FileRef,
			FileType:     input.Body.FileType,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			EvidenceDate: input.Body.EvidenceDate,
			UploadedBy:   actor.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(item), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-evidence",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/evidence",
		Summary:     "List evidence",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[listEvidence], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListEvidence(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(listEvidence{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-evidence",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}/evidence/{evidence_id}",
		Summary:     "Update evidence details",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID     string `path:"case_id"`
		EvidenceID string `path:"evidence_id"`
		Body       UpdateEvidenceRequest
	}) (*out[domain.EvidenceItem], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		item, err := e.UpdateEvidence(ctx, input.CaseID, input.EvidenceID, repo.EvidencePatch{
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			EvidenceDate: input.Body.EvidenceDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(item), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-evidence",
		Method:        http.MethodDelete,
		Path:          "/cases/{case_id}/evidence/{evidence_id}",
		Summary:       "Delete evidence",
		Description:   "The item's index is not reused.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID     string `path:"case_id"`
		EvidenceID string `path:"evidence_id"`
	}) (*struct{}, error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteEvidence(ctx, input.CaseID, input.EvidenceID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/plan",
		Summary:     "Get document plan",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[domain.DocumentPlan], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		plan, err := e.Repo.GetPlanByCase(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListDocuments(ctx, input.CaseID, "")
		if err != nil {
			return nil, handleError(err)
		}
		return reply(planResponse(plan, docs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/documents",
		Summary:     "List generated documents",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Status string `query:"status" enum:"PENDING,COMPLETED,FAILED"`
	}) (*out[listDocuments], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListDocuments(ctx, input.CaseID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(listDocuments{Items: nonNilSlice(docs)}), nil
	})

	type docPath struct {
		CaseID     string `path:"case_id"`
		DocumentID string `path:"document_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "retry-document",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/documents/{document_id}/retry",
		Summary:     "Retry a failed document",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *docPath) (*out[domain.GeneratedDocument], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		doc, err := e.RetryDocument(ctx, input.CaseID, input.DocumentID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(doc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retry-failed-documents",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/documents/retry-failed",
		Summary:     "Retry every failed document below the retry limit",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*out[engine.BatchResult], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		res, err := e.RetryFailedDocuments(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-document-sent",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/documents/{document_id}/sent",
		Summary:     "Mark a document as sent",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *docPath) (*out[domain.GeneratedDocument], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		doc, err := e.MarkDocumentSent(ctx, input.CaseID, input.DocumentID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(doc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-follow-up",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/follow-up",
		Summary:       "Generate a follow-up letter",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *casePath) (*out[domain.GeneratedDocument], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		doc, err := e.GenerateFollowUp(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(doc), nil
	})
}

func registerTimeline(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-timeline",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/timeline",
		Summary:     "Case timeline",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		After  int64  `query:"after" minimum:"0"`
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*out[paginatedTimeline], error) {
		if _, _, err := loadCase(ctx, e, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit == 0 {
			limit = 100
		}
		events, err := e.Repo.ListTimeline(ctx, input.CaseID, input.After, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(timelinePage(events, limit)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Notifications for the caller",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" minimum:"0" maximum:"500"`
	}) (*out[listNotifications], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, actor.ID, input.Unread, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(listNotifications{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "read-notification",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, actor.ID, input.NotificationID, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerComplexity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "score-complexity",
		Method:      http.MethodPost,
		Path:        "/complexity/score",
		Summary:     "Score case complexity",
		Description: "Stateless. Returns the level, document structure and recommended documents for a strategy.",
	}, func(ctx context.Context, input *struct {
		Body ScoreRequest
	}) (*out[complexity.Result], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s := domain.Strategy{
			DisputeType:    input.Body.DisputeType,
			KeyFacts:       input.Body.KeyFacts,
			DesiredOutcome: input.Body.DesiredOutcome,
		}
		return reply(e.Planner.Scorer.Score(&s, input.Body.EvidenceCount)), nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
