package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"opsboard/internal/auth"
	"opsboard/internal/board"
	"opsboard/internal/config"
	"opsboard/internal/domain"
	"opsboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Board    board.Board
	BasePath string
	Auth     AuthConfig
	Webhooks []config.Webhook
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"not allowed to edit this comment"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
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

// New returns an HTTP handler exposing the Opsboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the required envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors answer 400, not 422.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Board.Repo))
	hcfg := huma.DefaultConfig("Opsboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Board)
	registerMembers(group, cfg.Board)
	registerStages(group, cfg.Board)
	registerTasks(group, cfg.Board)
	registerIncidents(group, cfg.Board)
	registerResourceRequests(group, cfg.Board)
	registerComments(group, cfg.Board)
	registerActivity(group, cfg.Board)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Board, cfg.Webhooks)

	return router, nil
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

// handleError maps core errors onto the HTTP taxonomy. Unexpected store
// failures surface as a generic internal error; the full detail goes to the
// server log only.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	var ve board.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	log.Printf("server: internal error: %v", err)
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
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
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
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
    <title>Opsboard API Docs</title>
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
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body struct {
			Project domain.Project `json:"project"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := b.InitProject(ctx, input.Body.ID, input.Body.Name, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Project domain.Project `json:"project"`
			} `json:"body"`
		}{}
		out.Body.Project = p
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Projects []domain.Project `json:"projects"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := b.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Projects []domain.Project `json:"projects"`
			} `json:"body"`
		}{}
		out.Body.Projects = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}",
		Summary:     "Get project",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*struct {
		Body struct {
			Project domain.Project `json:"project"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := b.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Project domain.Project `json:"project"`
			} `json:"body"`
		}{}
		out.Body.Project = p
		return out, nil
	})
}

func registerMembers(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{projectId}/members",
		Summary:       "Add project member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"projectId"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body struct {
			Member domain.Member `json:"member"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := b.AddMember(ctx, input.ProjectID, input.Body.UserID, input.Body.Role, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Member domain.Member `json:"member"`
			} `json:"body"`
		}{}
		out.Body.Member = m
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*struct {
		Body struct {
			Members []domain.Member `json:"members"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := b.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := b.Repo.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Members []domain.Member `json:"members"`
			} `json:"body"`
		}{}
		out.Body.Members = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectId}/members/{userId}",
		Summary:     "Remove project member",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		UserID    string `path:"userId"`
	}) (*struct {
		Body struct {
			Success bool `json:"success"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := b.RemoveMember(ctx, input.ProjectID, input.UserID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool `json:"success"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		return out, nil
	})
}

func registerStages(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/stages",
		Summary:     "List board stages",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		StageType string `query:"stageType" enum:"TASK,INCIDENT,RESOURCE" required:"false"`
	}) (*struct {
		Body struct {
			Stages []StageResponse `json:"stages"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := b.ListStages(ctx, input.ProjectID, input.StageType)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Stages []StageResponse `json:"stages"`
			} `json:"body"`
		}{}
		out.Body.Stages = mapStages(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-stage",
		Method:        http.MethodPost,
		Path:          "/projects/{projectId}/stages",
		Summary:       "Create board stage",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"projectId"`
		Body      CreateStageRequest `json:"body"`
	}) (*struct {
		Body struct {
			Stage StageResponse `json:"stage"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		s, err := b.CreateStage(ctx, board.StageCreateOptions{
			ProjectID: input.ProjectID,
			Name:      input.Body.Name,
			Color:     input.Body.Color,
			StageType: input.Body.StageType,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Stage StageResponse `json:"stage"`
			} `json:"body"`
		}{}
		out.Body.Stage = stageResponse(s)
		return out, nil
	})
}

func registerTasks(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{projectId}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"projectId"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body struct {
			Task domain.Task `json:"task"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := b.CreateTask(ctx, board.TaskCreateOptions{
			ProjectID:   input.ProjectID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssigneeID:  input.Body.AssigneeID,
			DueDate:     input.Body.DueDate,
			UserID:      principal.UserID,
			Role:        principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Task domain.Task `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Task = t
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*struct {
		Body struct {
			Tasks []domain.Task `json:"tasks"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := b.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := b.Repo.ListTasks(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Tasks []domain.Task `json:"tasks"`
			} `json:"body"`
		}{}
		out.Body.Tasks = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/tasks/{taskId}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		TaskID    string `path:"taskId"`
	}) (*struct {
		Body struct {
			Task domain.Task `json:"task"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := b.Repo.GetTask(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Task domain.Task `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Task = t
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/projects/{projectId}/tasks/{taskId}/move",
		Summary:     "Move task to a stage",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string      `path:"projectId"`
		TaskID    string      `path:"taskId"`
		Body      MoveRequest `json:"body"`
	}) (*struct {
		Body struct {
			Task domain.Task `json:"task"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := b.Move(ctx, board.MoveOptions{
			ProjectID: input.ProjectID,
			Kind:      domain.KindTask,
			ItemID:    input.TaskID,
			StageID:   input.Body.StageID,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		t, err := b.Repo.GetTask(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Task domain.Task `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Task = t
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{projectId}/tasks/{taskId}/status",
		Summary:     "Update task status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"projectId"`
		TaskID    string              `path:"taskId"`
		Body      UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body struct {
			Task domain.Task `json:"task"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := b.UpdateTaskStatus(ctx, input.ProjectID, input.TaskID, input.Body.Status, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Task domain.Task `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Task = t
		return out, nil
	})
}

func registerIncidents(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-incident",
		Method:        http.MethodPost,
		Path:          "/projects/{projectId}/incidents",
		Summary:       "Report incident",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"projectId"`
		Body      CreateIncidentRequest `json:"body"`
	}) (*struct {
		Body struct {
			Incident domain.Incident `json:"incident"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := b.CreateIncident(ctx, board.IncidentCreateOptions{
			ProjectID:     input.ProjectID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			AssigneeID:    input.Body.AssigneeID,
			RelatedTaskID: input.Body.RelatedTaskID,
			UserID:        principal.UserID,
			Role:          principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Incident domain.Incident `json:"incident"`
			} `json:"body"`
		}{}
		out.Body.Incident = in
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-incidents",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/incidents",
		Summary:     "List incidents",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*struct {
		Body struct {
			Incidents []domain.Incident `json:"incidents"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := b.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := b.Repo.ListIncidents(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Incidents []domain.Incident `json:"incidents"`
			} `json:"body"`
		}{}
		out.Body.Incidents = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-incident",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/incidents/{incidentId}",
		Summary:     "Get incident",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"projectId"`
		IncidentID string `path:"incidentId"`
	}) (*struct {
		Body struct {
			Incident domain.Incident `json:"incident"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		in, err := b.Repo.GetIncident(ctx, input.ProjectID, input.IncidentID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Incident domain.Incident `json:"incident"`
			} `json:"body"`
		}{}
		out.Body.Incident = in
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-incident",
		Method:      http.MethodPost,
		Path:        "/projects/{projectId}/incidents/{incidentId}/move",
		Summary:     "Move incident to a stage",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string      `path:"projectId"`
		IncidentID string      `path:"incidentId"`
		Body       MoveRequest `json:"body"`
	}) (*struct {
		Body struct {
			Incident domain.Incident `json:"incident"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := b.Move(ctx, board.MoveOptions{
			ProjectID: input.ProjectID,
			Kind:      domain.KindIncident,
			ItemID:    input.IncidentID,
			StageID:   input.Body.StageID,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		in, err := b.Repo.GetIncident(ctx, input.ProjectID, input.IncidentID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Incident domain.Incident `json:"incident"`
			} `json:"body"`
		}{}
		out.Body.Incident = in
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-incident-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{projectId}/incidents/{incidentId}/status",
		Summary:     "Update incident status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string              `path:"projectId"`
		IncidentID string              `path:"incidentId"`
		Body       UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body struct {
			Incident domain.Incident `json:"incident"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := b.UpdateIncidentStatus(ctx, input.ProjectID, input.IncidentID, input.Body.Status, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Incident domain.Incident `json:"incident"`
			} `json:"body"`
		}{}
		out.Body.Incident = in
		return out, nil
	})
}

func registerResourceRequests(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-resource-request",
		Method:        http.MethodPost,
		Path:          "/projects/{projectId}/resource-requests",
		Summary:       "Create resource request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                       `path:"projectId"`
		Body      CreateResourceRequestRequest `json:"body"`
	}) (*struct {
		Body struct {
			ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rr, err := b.CreateResourceRequest(ctx, board.RequestCreateOptions{
			ProjectID:  input.ProjectID,
			Title:      input.Body.Title,
			Notes:      input.Body.Notes,
			TaskID:     input.Body.TaskID,
			IncidentID: input.Body.IncidentID,
			UserID:     principal.UserID,
			Role:       principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
			} `json:"body"`
		}{}
		out.Body.ResourceRequest = rr
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-resource-requests",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/resource-requests",
		Summary:     "List resource requests",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*struct {
		Body struct {
			ResourceRequests []domain.ResourceRequest `json:"resourceRequests"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := b.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := b.Repo.ListResourceRequests(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ResourceRequests []domain.ResourceRequest `json:"resourceRequests"`
			} `json:"body"`
		}{}
		out.Body.ResourceRequests = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-resource-request",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/resource-requests/{requestId}",
		Summary:     "Get resource request",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		RequestID string `path:"requestId"`
	}) (*struct {
		Body struct {
			ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		rr, err := b.Repo.GetResourceRequest(ctx, input.ProjectID, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
			} `json:"body"`
		}{}
		out.Body.ResourceRequest = rr
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-resource-request",
		Method:      http.MethodPost,
		Path:        "/projects/{projectId}/resource-requests/{requestId}/move",
		Summary:     "Move resource request to a stage",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string      `path:"projectId"`
		RequestID string      `path:"requestId"`
		Body      MoveRequest `json:"body"`
	}) (*struct {
		Body struct {
			ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := b.Move(ctx, board.MoveOptions{
			ProjectID: input.ProjectID,
			Kind:      domain.KindResourceRequest,
			ItemID:    input.RequestID,
			StageID:   input.Body.StageID,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		rr, err := b.Repo.GetResourceRequest(ctx, input.ProjectID, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
			} `json:"body"`
		}{}
		out.Body.ResourceRequest = rr
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-resource-request-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{projectId}/resource-requests/{requestId}/status",
		Summary:     "Update resource request status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"projectId"`
		RequestID string              `path:"requestId"`
		Body      UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body struct {
			ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rr, err := b.UpdateRequestStatus(ctx, input.ProjectID, input.RequestID, input.Body.Status, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
			} `json:"body"`
		}{}
		out.Body.ResourceRequest = rr
		return out, nil
	})
}

func registerComments(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/projects/{projectId}/resource-requests/{requestId}/comments",
		Summary:       "Comment on a resource request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"projectId"`
		RequestID string         `path:"requestId"`
		Body      CommentRequest `json:"body"`
	}) (*struct {
		Body struct {
			Comment domain.Comment `json:"comment"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := b.CreateComment(ctx, board.CommentCreateOptions{
			ProjectID: input.ProjectID,
			RequestID: input.RequestID,
			Content:   input.Body.Content,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Comment domain.Comment `json:"comment"`
			} `json:"body"`
		}{}
		out.Body.Comment = c
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/resource-requests/{requestId}/comments",
		Summary:     "List comments on a resource request",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		RequestID string `path:"requestId"`
	}) (*struct {
		Body struct {
			Comments []domain.Comment `json:"comments"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := b.ListComments(ctx, input.ProjectID, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Comments []domain.Comment `json:"comments"`
			} `json:"body"`
		}{}
		out.Body.Comments = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-comment",
		Method:      http.MethodPut,
		Path:        "/projects/{projectId}/resource-requests/{requestId}/comments/{commentId}",
		Summary:     "Edit a comment",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"projectId"`
		RequestID string         `path:"requestId"`
		CommentID string         `path:"commentId"`
		Body      CommentRequest `json:"body"`
	}) (*struct {
		Body struct {
			Comment domain.Comment `json:"comment"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := b.UpdateComment(ctx, board.CommentEditOptions{
			ProjectID: input.ProjectID,
			RequestID: input.RequestID,
			CommentID: input.CommentID,
			Content:   input.Body.Content,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Comment domain.Comment `json:"comment"`
			} `json:"body"`
		}{}
		out.Body.Comment = c
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-comment",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectId}/resource-requests/{requestId}/comments/{commentId}",
		Summary:     "Delete a comment",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		RequestID string `path:"requestId"`
		CommentID string `path:"commentId"`
	}) (*struct {
		Body struct {
			Success bool `json:"success"`
		} `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := b.DeleteComment(ctx, board.CommentEditOptions{
			ProjectID: input.ProjectID,
			RequestID: input.RequestID,
			CommentID: input.CommentID,
			UserID:    principal.UserID,
			Role:      principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool `json:"success"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		return out, nil
	})
}

func registerActivity(api huma.API, b board.Board) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/projects/{projectId}/activity",
		Summary:     "List activity log",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
		Type      string `query:"type" required:"false"`
		ItemKind  string `query:"itemKind" required:"false"`
		ItemID    string `query:"itemId" required:"false"`
		Limit     int    `query:"limit" required:"false"`
		Cursor    int64  `query:"cursor" required:"false"`
	}) (*struct {
		Body struct {
			Activities []ActivityResponse `json:"activities"`
			NextCursor int64              `json:"nextCursor,omitempty"`
		} `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := b.Activities(ctx, repo.ActivityFilters{
			ProjectID: input.ProjectID,
			Type:      input.Type,
			ItemKind:  input.ItemKind,
			ItemID:    input.ItemID,
			Limit:     input.Limit,
			Cursor:    input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Activities []ActivityResponse `json:"activities"`
				NextCursor int64              `json:"nextCursor,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Activities = mapActivities(items)
		if len(items) > 0 {
			out.Body.NextCursor = items[len(items)-1].ID
		}
		return out, nil
	})
}
