// Package ocm provides the OCM protocol service: the /ocm/* endpoints
// remote servers call to deliver shares, notifications and invite
// acceptances.
package ocm

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/services"
	"github.com/MahdiBaghbani/ocmbridge/internal/services/httpwrap"
)

func init() {
	services.MustRegister("ocm", New)
}

// Service is the OCM protocol service.
type Service struct {
	router chi.Router
	deps   *services.Deps
	log    *slog.Logger
}

// New creates the OCM protocol service.
func New(d *services.Deps, log *slog.Logger) (services.Service, error) {
	if d == nil || d.Builder == nil || d.Providers == nil || d.Dispatcher == nil || d.Invites == nil {
		return nil, errors.New("ocm service: builder, providers, dispatcher and invites are required")
	}
	s := &Service{deps: d, log: logutil.NoopIfNil(log)}

	r := chi.NewRouter()
	if d.RateLimit != nil {
		r.Use(d.RateLimit)
	}
	r.Post("/shares", s.createShare)
	r.Post("/notifications", s.notification)
	r.Post("/invite-accepted", s.inviteAccepted)
	s.router = r
	return s, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "ocm"
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	return nil
}

type createShareResponse struct {
	RecipientDisplayName string `json:"recipientDisplayName"`
}

func (s *Service) createShare(w http.ResponseWriter, r *http.Request) {
	var wire shares.WireRequest
	if err := httpwrap.DecodeJSON(r, &wire); err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	share, err := s.deps.Builder.Build(wire.Fields(), wire.Protocol)
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	p, ok := s.deps.Providers.Resolve(share.ResourceType)
	if !ok {
		httpwrap.WriteError(w, r, s.log, ocmerr.New(ocmerr.KindProviderNotFound, "no provider for resource type "+share.ResourceType))
		return
	}

	name, err := p.ShareReceived(r.Context(), share)
	if err != nil {
		if !ocmerr.IsClassified(err) {
			err = ocmerr.Wrap(ocmerr.KindInternal, "provider failed", err)
		}
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	httpwrap.WriteJSON(w, http.StatusCreated, createShareResponse{RecipientDisplayName: name})
}

type notificationRequest struct {
	NotificationType string         `json:"notificationType"`
	ResourceType     string         `json:"resourceType"`
	ProviderID       string         `json:"providerId"`
	Notification     map[string]any `json:"notification"`
}

func (s *Service) notification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := httpwrap.DecodeJSON(r, &req); err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	result, err := s.deps.Dispatcher.Dispatch(r.Context(), req.NotificationType, req.ResourceType, req.ProviderID, req.Notification)
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}
	httpwrap.WriteJSON(w, http.StatusCreated, result)
}

type inviteAcceptedRequest struct {
	RecipientProvider string `json:"recipientProvider"`
	Token             string `json:"token"`
	UserID            string `json:"userID"`
	Email             string `json:"email"`
	Name              string `json:"name"`
}

type inviteAcceptedResponse struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

func (s *Service) inviteAccepted(w http.ResponseWriter, r *http.Request) {
	var req inviteAcceptedRequest
	if err := httpwrap.DecodeJSON(r, &req); err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	accepted, err := s.deps.Invites.Accept(r.Context(), invites.AcceptRequest{
		RecipientProvider: req.RecipientProvider,
		Token:             req.Token,
		UserID:            req.UserID,
		Email:             req.Email,
		Name:              req.Name,
	})
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	httpwrap.WriteJSON(w, http.StatusOK, inviteAcceptedResponse{
		UserID: accepted.Sender,
		Email:  accepted.Email,
		Name:   accepted.Name,
	})
}
