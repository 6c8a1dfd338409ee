package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"loopline/internal/engine"
	"loopline/internal/focus"
	"loopline/internal/lifecycle"
	"loopline/internal/repo"
	"loopline/internal/session"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"card is discarded"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Loopline API. Confrontation
// sessions are held in memory per handler; clients drive the three phases
// with begin, proceed, decide, and cancel.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Loopline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	sessions := session.NewManager()

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerCards(group, cfg.Engine)
	registerConfrontation(group, cfg.Engine, sessions)
	registerFocus(group, cfg.Engine)
	registerDomains(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ite lifecycle.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": ite.From, "event": ite.Event})
	}
	var dpe focus.DomainParseError
	if errors.As(err, &dpe) {
		return newAPIError(http.StatusBadRequest, "invalid_domain", err.Error(), map[string]any{"input": dpe.Input})
	}
	if errors.Is(err, session.ErrPhase) {
		return newAPIError(http.StatusConflict, "phase_conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "still running"):
		return newAPIError(http.StatusConflict, "phase_conflict", msg, nil)
	case strings.Contains(lowered, "frozen") || strings.Contains(lowered, "can only be"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
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
    <title>Loopline API Docs</title>
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

func registerStatus(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "System state snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MetricsResponse `json:"body"`
	}, error) {
		m, err := e.Metrics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MetricsResponse `json:"body"`
		}{Body: metricsResponse(m)}, nil
	})
}

func registerCards(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "capture-card",
		Method:        http.MethodPost,
		Path:          "/cards",
		Summary:       "Capture an open loop",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CaptureRequest `json:"body"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.Capture(ctx, engine.CaptureOptions{
			SourceType:      input.Body.SourceType,
			SourceContent:   input.Body.SourceContent,
			PlatformName:    input.Body.PlatformName,
			ExtractedTitle:  input.Body.ExtractedTitle,
			Category:        input.Body.Category,
			DurationMinutes: input.Body.DurationMinutes,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cards",
		Method:      http.MethodGet,
		Path:        "/cards",
		Summary:     "List cards, newest first",
	}, func(ctx context.Context, input *struct {
		State string `query:"state" enum:"uncommitted,executed,shadowed,discarded"`
	}) (*struct {
		Body []CardResponse `json:"body"`
	}, error) {
		cards, err := e.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if input.State != "" {
			filtered := cards[:0:0]
			for _, c := range cards {
				if c.State == input.State {
					filtered = append(filtered, c)
				}
			}
			cards = filtered
		}
		return &struct {
			Body []CardResponse `json:"body"`
		}{Body: mapCards(cards, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-card",
		Method:      http.MethodGet,
		Path:        "/cards/{id}",
		Summary:     "Get card",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		card, err := e.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-card",
		Method:      http.MethodDelete,
		Path:        "/cards/{id}",
		Summary:     "Delete card record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Delete(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerConfrontation(api huma.API, e *engine.Engine, sessions *session.Manager) {
	huma.Register(api, huma.Operation{
		OperationID:   "begin-confrontation",
		Method:        http.MethodPost,
		Path:          "/cards/{id}/confrontation",
		Summary:       "Begin a confrontation session",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ConfrontationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := sessions.Begin(ctx, e, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConfrontationResponse `json:"body"`
		}{Body: confrontationResponse(s, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-confrontation",
		Method:      http.MethodGet,
		Path:        "/cards/{id}/confrontation",
		Summary:     "Confrontation session state",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ConfrontationResponse `json:"body"`
	}, error) {
		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no confrontation session for card", nil)
		}
		return &struct {
			Body ConfrontationResponse `json:"body"`
		}{Body: confrontationResponse(s, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "proceed-confrontation",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/confrontation/proceed",
		Summary:     "Pass the gate, start the reality check",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ConfrontationResponse `json:"body"`
	}, error) {
		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no confrontation session for card", nil)
		}
		if err := s.Proceed(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConfrontationResponse `json:"body"`
		}{Body: confrontationResponse(s, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-confrontation",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/confrontation/decide",
		Summary:     "End the confrontation with a decision",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body DecideRequest `json:"body"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no confrontation session for card", nil)
		}
		// polling surface: move past the reality check if it has elapsed
		if err := s.Advance(e.Now()); err != nil && !errors.Is(err, session.ErrPhase) {
			return nil, handleError(err)
		}
		card, err := s.Decide(ctx, input.Body.Decision, input.Body.StartAction, input.Body.StopRule, input.Body.DurationMinutes)
		if err != nil {
			return nil, handleError(err)
		}
		sessions.Close(input.ID)
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-confrontation",
		Method:      http.MethodDelete,
		Path:        "/cards/{id}/confrontation",
		Summary:     "Abandon the confrontation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no confrontation session for card", nil)
		}
		card, err := s.Cancel()
		if err != nil {
			return nil, handleError(err)
		}
		sessions.Close(input.ID)
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})
}

func registerFocus(api huma.API, e *engine.Engine) {
	type cardPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "start-focus",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/focus/start",
		Summary:     "Start the execution timer",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *cardPath) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.StartTimer(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-focus",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/focus/stop",
		Summary:     "Stop execution, closing the loop",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *cardPath) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.StopExecution(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abort-focus",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/focus/abort",
		Summary:     "Abort execution, back to shadowed",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *cardPath) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.AbortExecution(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})
}

func registerDomains(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "add-allowed-domain",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/domains",
		Summary:     "Whitelist a domain for execution",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body DomainRequest `json:"body"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.AddAllowedDomain(ctx, input.ID, input.Body.Domain, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-allowed-domain",
		Method:      http.MethodDelete,
		Path:        "/cards/{id}/domains/{domain}",
		Summary:     "Remove a whitelisted domain",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Domain string `path:"domain"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.RemoveAllowedDomain(ctx, input.ID, input.Domain, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, e.Now())}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		CardID string `query:"card_id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		evts, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.CardID)
		if err != nil {
			return nil, handleError(err)
		}
		var next string
		if len(evts) > limit {
			evts = evts[:limit]
			// pages run newest to oldest; the last id on this page is the
			// exclusive upper bound of the next one
			next = fmt.Sprintf("%d", evts[limit-1].ID)
		}
		items := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			items = append(items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: items, NextCursor: next}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: principal.ActorID, Source: principal.Source}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
