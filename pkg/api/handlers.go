package api

import (
	"bytes"
	"encoding/json"

	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/router"
	"github.com/SHAIKYASIR/skillsync/pkg/store"

	"github.com/valyala/fasthttp"
)

// decodeBody strictly decodes the request body into v.
func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := bytes.TrimSpace(ctx.PostBody())
	if len(body) == 0 {
		router.WriteError(ctx, store.Validationf("request body is required"))
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		router.WriteError(ctx, store.Validationf("invalid JSON payload: %v", err))
		return false
	}
	return true
}

func writeID(ctx *fasthttp.RequestCtx, status int, id string, err error) {
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONStatus(ctx, status, map[string]string{"id": id})
}

func writeOK(ctx *fasthttp.RequestCtx, err error) {
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func writeValue(ctx *fasthttp.RequestCtx, v any, err error) {
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, v)
}

// users

func (s *Server) StoreUser(ctx *fasthttp.RequestCtx) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	id, err := s.Ingest.StoreUser(auth.Context(ctx), body.Email)
	writeID(ctx, fasthttp.StatusOK, id, err)
}

func (s *Server) CurrentUser(ctx *fasthttp.RequestCtx) {
	u, err := s.Query.CurrentUser(auth.Context(ctx))
	writeValue(ctx, u, err)
}

// UpdateSubscription is the billing provider's callback. The gateway keeps
// frontend keys away from it.
func (s *Server) UpdateSubscription(ctx *fasthttp.RequestCtx) {
	var body struct {
		TokenIdentifier string `json:"tokenIdentifier"`
		SubscriptionID  string `json:"subscriptionId"`
		EndsOn          *int64 `json:"endsOn"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	if body.EndsOn == nil {
		router.WriteError(ctx, store.Validationf("endsOn is required"))
		return
	}
	id, err := s.Ingest.UpdateSubscription(auth.Context(ctx), body.TokenIdentifier, body.SubscriptionID, *body.EndsOn)
	writeID(ctx, fasthttp.StatusOK, id, err)
}

// UserBySubscription lets the billing backend find the user behind a
// subscription id.
func (s *Server) UserBySubscription(ctx *fasthttp.RequestCtx) {
	u, err := s.Query.UserBySubscription(auth.Context(ctx), router.PathParam(ctx, "subscriptionId"))
	writeValue(ctx, u, err)
}

func (s *Server) ListProjectsByOwner(ctx *fasthttp.RequestCtx) {
	list, err := s.Query.ListProjectsByOwner(auth.Context(ctx), router.PathParam(ctx, "ownerId"))
	writeValue(ctx, list, err)
}

// projects

func (s *Server) CreateProject(ctx *fasthttp.RequestCtx) {
	var body struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		OwnerID string `json:"ownerId"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	id, err := s.Ingest.CreateProject(auth.Context(ctx), body.Name, body.Content, body.OwnerID)
	writeID(ctx, fasthttp.StatusCreated, id, err)
}

func (s *Server) ListProjects(ctx *fasthttp.RequestCtx) {
	list, err := s.Query.ListProjects(auth.Context(ctx))
	writeValue(ctx, list, err)
}

func (s *Server) GetProject(ctx *fasthttp.RequestCtx) {
	p, err := s.Query.GetProject(auth.Context(ctx), router.PathParam(ctx, "id"))
	writeValue(ctx, p, err)
}

func (s *Server) UpdateProjectContent(ctx *fasthttp.RequestCtx) {
	var body struct {
		Content *string `json:"content"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	if body.Content == nil {
		router.WriteError(ctx, store.Validationf("content is required"))
		return
	}
	writeOK(ctx, s.Ingest.UpdateProjectContent(auth.Context(ctx), router.PathParam(ctx, "id"), *body.Content))
}

func (s *Server) UpdateProjectStatus(ctx *fasthttp.RequestCtx) {
	var body struct {
		CompletionStatus *float64 `json:"completionStatus"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	if body.CompletionStatus == nil {
		router.WriteError(ctx, store.Validationf("completionStatus is required"))
		return
	}
	writeOK(ctx, s.Ingest.UpdateProjectStatus(auth.Context(ctx), router.PathParam(ctx, "id"), *body.CompletionStatus))
}

// messages and activities

func (s *Server) SendMessage(ctx *fasthttp.RequestCtx) {
	var body struct {
		Content  string `json:"content"`
		SenderID string `json:"senderId"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	id, err := s.Ingest.SendMessage(auth.Context(ctx), router.PathParam(ctx, "id"), body.Content, body.SenderID)
	writeID(ctx, fasthttp.StatusCreated, id, err)
}

func (s *Server) ListMessages(ctx *fasthttp.RequestCtx) {
	list, err := s.Query.ListMessages(auth.Context(ctx), router.PathParam(ctx, "id"))
	writeValue(ctx, list, err)
}

func (s *Server) LogActivity(ctx *fasthttp.RequestCtx) {
	var body struct {
		UserID       string `json:"userId"`
		ActivityType string `json:"activityType"`
		Text         string `json:"text"`
	}
	if !decodeBody(ctx, &body) {
		return
	}
	id, err := s.Ingest.LogActivity(auth.Context(ctx), router.PathParam(ctx, "id"), body.UserID, body.ActivityType, body.Text)
	writeID(ctx, fasthttp.StatusCreated, id, err)
}

func (s *Server) ListActivities(ctx *fasthttp.RequestCtx) {
	list, err := s.Query.ListActivities(auth.Context(ctx), router.PathParam(ctx, "id"))
	writeValue(ctx, list, err)
}
