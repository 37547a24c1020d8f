package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"castline/internal/broadcast"
	"castline/internal/depth"
	"castline/internal/domain"
	"castline/internal/events"
	"castline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	Resolver *depth.Resolver
	Events   events.Writer
	Auth     AuthConfig
	BasePath string
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"campaign not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type api struct {
	repo     repo.Repo
	resolver *depth.Resolver
	events   events.Writer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New returns an HTTP handler exposing the castline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Resolver == nil {
		return nil, errors.New("resolver required")
	}

	huma.DefaultArrayNullable = false
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Castline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	h := humachi.New(router, hcfg)
	group := huma.NewGroup(h, basePath)

	a := &api{
		repo:     cfg.Repo,
		resolver: cfg.Resolver,
		events:   cfg.Events,
		logger:   cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	registerHealth(group)
	a.registerCampaigns(group)
	a.registerDepth(group)
	a.registerEvents(group)

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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must") || strings.Contains(lowered, "out of range") ||
		strings.Contains(lowered, "exceeds") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(h huma.API) {
	huma.Register(h, huma.Operation{
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

func (a *api) registerCampaigns(h huma.API) {
	huma.Register(h, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create campaign",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := p.ActorID
		if input.Body.UserID != "" && input.Body.UserID != p.ActorID {
			if !p.IsAdmin() {
				return nil, newAPIError(http.StatusForbidden, "forbidden", "cannot create campaigns for other users", nil)
			}
			userID = input.Body.UserID
		}
		now := a.now()
		ts := now.UTC().Format(time.RFC3339)
		c := domain.Campaign{
			ID:       a.newID(),
			UserID:   userID,
			Name:     input.Body.Name,
			Message:  input.Body.Message,
			MediaURL: input.Body.MediaURL,
			Groups:   input.Body.Groups,
			Schedule: input.Body.Schedule,
			Config:   input.Body.Config,
			Stats: domain.CampaignStats{
				NextRunAt: broadcast.InitialRun(input.Body.Schedule, now),
			},
			Status:    domain.CampaignActive,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		if err := domain.ValidateCampaign(c); err != nil {
			return nil, handleError(err)
		}
		if err := a.repo.EnsureUser(ctx, userID, a.resolver.DefaultLevel, now); err != nil {
			return nil, handleError(err)
		}
		if err := a.repo.InsertCampaign(ctx, c); err != nil {
			return nil, handleError(err)
		}
		a.appendEvent(ctx, "campaign.created", userID, "campaign", c.ID, p.ActorID, events.EventPayload{"name": c.Name})
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
	}) (*struct {
		Body []domain.Campaign `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if !p.IsAdmin() {
			userID = p.ActorID
		}
		items, err := a.repo.ListCampaigns(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Campaign{}
		}
		return &struct {
			Body []domain.Campaign `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{id}",
		Summary:     "Get campaign",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		c, statusErr := a.ownedCampaign(ctx, input.ID)
		if statusErr != nil {
			return nil, statusErr
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "update-campaign",
		Method:      http.MethodPatch,
		Path:        "/campaigns/{id}",
		Summary:     "Update campaign",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateCampaignRequest `json:"body"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		c, statusErr := a.ownedCampaign(ctx, input.ID)
		if statusErr != nil {
			return nil, statusErr
		}
		now := a.now()
		if input.Body.Name != nil {
			c.Name = *input.Body.Name
		}
		if input.Body.Message != nil {
			c.Message = *input.Body.Message
		}
		if input.Body.MediaURL != nil {
			c.MediaURL = *input.Body.MediaURL
		}
		if input.Body.Groups != nil {
			c.Groups = input.Body.Groups
		}
		rescheduled := false
		if input.Body.Schedule != nil {
			c.Schedule = *input.Body.Schedule
			rescheduled = true
		}
		if input.Body.Config != nil {
			c.Config = *input.Body.Config
		}
		if input.Body.Status != nil {
			switch *input.Body.Status {
			case domain.CampaignActive:
				if c.Status != domain.CampaignActive {
					rescheduled = true
				}
				c.Status = domain.CampaignActive
			case domain.CampaignPaused:
				c.Status = domain.CampaignPaused
			default:
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "status must be active or paused", nil)
			}
		}
		if rescheduled {
			c.Stats.NextRunAt = broadcast.InitialRun(c.Schedule, now)
		}
		if err := domain.ValidateCampaign(c); err != nil {
			return nil, handleError(err)
		}
		c.UpdatedAt = now.UTC().Format(time.RFC3339)
		if err := a.repo.UpdateCampaign(ctx, c); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		a.appendEvent(ctx, "campaign.updated", c.UserID, "campaign", c.ID, p.ActorID, events.EventPayload{"status": c.Status})
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "delete-campaign",
		Method:      http.MethodDelete,
		Path:        "/campaigns/{id}",
		Summary:     "Delete campaign",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		c, statusErr := a.ownedCampaign(ctx, input.ID)
		if statusErr != nil {
			return nil, statusErr
		}
		if err := a.repo.DeleteCampaign(ctx, c.ID); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		a.appendEvent(ctx, "campaign.deleted", c.UserID, "campaign", c.ID, p.ActorID, nil)
		return &struct{}{}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "trigger-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns/{id}/trigger",
		Summary:     "Make a campaign due immediately",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		c, statusErr := a.ownedCampaign(ctx, input.ID)
		if statusErr != nil {
			return nil, statusErr
		}
		if err := a.repo.TriggerCampaign(ctx, c.ID, a.now()); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		a.appendEvent(ctx, "campaign.triggered", c.UserID, "campaign", c.ID, p.ActorID, nil)
		updated, err := a.repo.GetCampaign(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: updated}, nil
	})
}

func (a *api) registerDepth(h huma.API) {
	huma.Register(h, huma.Operation{
		OperationID: "get-capabilities",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/capabilities",
		Summary:     "Resolve a user's capability context",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body CapabilitiesResponse `json:"body"`
	}, error) {
		if _, authErr := requireOwner(ctx, input.UserID); authErr != nil {
			return nil, authErr
		}
		cc, err := a.resolver.ResolveUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CapabilitiesResponse `json:"body"`
		}{Body: CapabilitiesResponse{UserID: input.UserID, Capabilities: cc}}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "set-depth",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/depth",
		Summary:     "Set a user's base depth level",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string          `path:"user_id"`
		Body   SetDepthRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		p, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Level < depth.MinLevel || input.Body.Level > depth.MaxLevel {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "level must be between 1 and 10", nil)
		}
		now := a.now()
		if err := a.repo.SetBaseDepth(ctx, input.UserID, input.Body.Level, now); err != nil {
			return nil, handleError(err)
		}
		a.appendEvent(ctx, "depth.set", input.UserID, "depth", input.UserID, p.ActorID, events.EventPayload{"level": input.Body.Level})
		u, err := a.repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID:   "grant-boost",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/boosts",
		Summary:       "Grant a temporary depth boost",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string             `path:"user_id"`
		Body   CreateBoostRequest `json:"body"`
	}) (*struct {
		Body domain.DepthBoost `json:"body"`
	}, error) {
		p, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.DepthDelta == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "depth_delta must be non-zero", nil)
		}
		expires, err := time.Parse(time.RFC3339, input.Body.ExpiresAt)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "expires_at must be RFC3339", nil)
		}
		now := a.now()
		if !expires.After(now) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "expires_at must be in the future", nil)
		}
		if err := a.repo.EnsureUser(ctx, input.UserID, a.resolver.DefaultLevel, now); err != nil {
			return nil, handleError(err)
		}
		b := domain.DepthBoost{
			ID:         a.newID(),
			UserID:     input.UserID,
			DepthDelta: input.Body.DepthDelta,
			ExpiresAt:  expires.UTC().Format(time.RFC3339),
			GrantedBy:  p.ActorID,
			CreatedAt:  now.UTC().Format(time.RFC3339),
		}
		if err := a.repo.InsertBoost(ctx, b); err != nil {
			return nil, handleError(err)
		}
		a.appendEvent(ctx, "boost.granted", input.UserID, "depth", b.ID, p.ActorID,
			events.EventPayload{"depth_delta": b.DepthDelta, "expires_at": b.ExpiresAt})
		return &struct {
			Body domain.DepthBoost `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(h, huma.Operation{
		OperationID: "list-boosts",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/boosts",
		Summary:     "List a user's depth boosts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []domain.DepthBoost `json:"body"`
	}, error) {
		if _, authErr := requireOwner(ctx, input.UserID); authErr != nil {
			return nil, authErr
		}
		boosts, err := a.repo.ListBoosts(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		if boosts == nil {
			boosts = []domain.DepthBoost{}
		}
		return &struct {
			Body []domain.DepthBoost `json:"body"`
		}{Body: boosts}, nil
	})
}

func (a *api) registerEvents(h huma.API) {
	huma.Register(h, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"20"`
		UserID string `query:"user_id"`
		Type   string `query:"type"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if !p.IsAdmin() {
			userID = p.ActorID
		}
		items, err := a.repo.LatestEvents(ctx, input.Limit, userID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

// ownedCampaign loads a campaign and enforces ownership. Foreign campaigns
// read as 404, not 403, so IDs don't leak across users.
func (a *api) ownedCampaign(ctx context.Context, id string) (domain.Campaign, huma.StatusError) {
	p, authErr := requirePrincipal(ctx)
	if authErr != nil {
		return domain.Campaign{}, authErr
	}
	c, err := a.repo.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, handleError(err)
	}
	if !p.IsAdmin() && c.UserID != p.ActorID {
		return domain.Campaign{}, newAPIError(http.StatusNotFound, "not_found", "campaign not found", nil)
	}
	return c, nil
}

func (a *api) appendEvent(ctx context.Context, evtType, userID, entityKind, entityID, actorID string, payload events.EventPayload) {
	if err := a.events.Append(ctx, nil, evtType, userID, entityKind, entityID, actorID, payload); err != nil {
		a.logger.Warn("event not recorded", zap.String("type", evtType), zap.Error(err))
	}
}
