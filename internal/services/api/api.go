// Package api provides the /api/* endpoints local users and tooling call to
// send shares, issue invitations and answer received shares.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/address"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider/inbox"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/transport"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/services"
	"github.com/MahdiBaghbani/ocmbridge/internal/services/httpwrap"
)

func init() {
	services.MustRegister("api", New)
}

// Service is the API service.
type Service struct {
	router chi.Router
	deps   *services.Deps
	log    *slog.Logger
}

// New creates the API service.
func New(d *services.Deps, log *slog.Logger) (services.Service, error) {
	if d == nil || d.Builder == nil || d.Submitter == nil || d.Invites == nil {
		return nil, errors.New("api service: builder, submitter and invites are required")
	}
	s := &Service{deps: d, log: logutil.NoopIfNil(log)}

	r := chi.NewRouter()
	r.Route("/inbox", func(r chi.Router) {
		r.Get("/shares", s.listIncoming)
		r.Post("/shares/{shareId}/accept", s.respond(true))
		r.Post("/shares/{shareId}/decline", s.respond(false))
	})
	r.Route("/shares/outgoing", func(r chi.Router) {
		r.Get("/", s.listOutgoing)
		r.Post("/", s.createOutgoing)
		r.Post("/{providerId}/unshare", s.unshare)
	})
	r.Post("/invites", s.createInvite)
	r.Get("/discover", s.discover)
	s.router = r
	return s, nil
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	return nil
}

type createInviteRequest struct {
	Sender            string `json:"sender"`
	RecipientProvider string `json:"recipientProvider"`
	UserID            string `json:"userID"`
	Email             string `json:"email"`
	Name              string `json:"name"`
}

type createInviteResponse struct {
	Token          string     `json:"token"`
	InviteString   string     `json:"inviteString,omitempty"`
	ProviderDomain string     `json:"providerDomain,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

func (s *Service) createInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := httpwrap.DecodeJSON(r, &req); err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	create := invites.CreateRequest{
		Sender:            req.Sender,
		RecipientProvider: req.RecipientProvider,
		UserID:            req.UserID,
		Email:             req.Email,
		Name:              req.Name,
	}
	if s.deps.Config != nil {
		create.TTL = s.deps.Config.Invites.TTL()
	}

	tok, err := s.deps.Invites.Create(r.Context(), create)
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	resp := createInviteResponse{Token: tok.Token}
	if s.deps.Config != nil {
		resp.ProviderDomain = s.deps.Config.PublicAuthority()
		resp.InviteString = invites.BuildInviteString(tok.Token, resp.ProviderDomain)
	}
	if !tok.ExpiresAt.IsZero() {
		exp := tok.ExpiresAt
		resp.ExpiresAt = &exp
	}
	httpwrap.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Service) listIncoming(w http.ResponseWriter, r *http.Request) {
	out := []inbox.Share{}
	for _, rt := range s.resourceTypes() {
		out = append(out, s.deps.Inboxes[rt].List()...)
	}
	httpwrap.WriteJSON(w, http.StatusOK, out)
}

func (s *Service) resourceTypes() []string {
	names := make([]string, 0, len(s.deps.Inboxes))
	for rt := range s.deps.Inboxes {
		names = append(names, rt)
	}
	sort.Strings(names)
	return names
}

// respond answers a received share locally, then tells the sending server.
// A failed notification is logged; the local answer stands.
func (s *Service) respond(accept bool) http.HandlerFunc {
	notificationType := notifications.TypeShareDeclined
	if accept {
		notificationType = notifications.TypeShareAccepted
	}

	return func(w http.ResponseWriter, r *http.Request) {
		log := logutil.FromContext(r.Context(), s.log)
		id := chi.URLParam(r, "shareId")

		share, err := s.answer(r.Context(), id, accept)
		if err != nil {
			httpwrap.WriteError(w, r, s.log, err)
			return
		}

		if s.deps.Notifier != nil {
			s.notifySender(r, log, share, notificationType)
		}
		httpwrap.WriteJSON(w, http.StatusOK, share)
	}
}

func (s *Service) answer(ctx context.Context, id string, accept bool) (inbox.Share, error) {
	for _, rt := range s.resourceTypes() {
		share, err := s.deps.Inboxes[rt].Respond(ctx, id, accept)
		if !errors.Is(err, inbox.ErrUnknownShare) {
			return share, err
		}
	}
	return inbox.Share{}, ocmerr.Wrap(ocmerr.KindProviderRejected, "share "+id, inbox.ErrUnknownShare)
}

func (s *Service) notifySender(r *http.Request, log *slog.Logger, share inbox.Share, notificationType string) {
	host, err := address.ProviderHost(share.Sender)
	if err != nil {
		log.Warn("cannot notify sender", "share_id", share.ID, "sender", share.Sender, "error", err)
		return
	}
	err = s.deps.Notifier.Notify(r.Context(), host, transport.Notification{
		NotificationType: notificationType,
		ResourceType:     share.ResourceType,
		ProviderID:       share.ProviderID,
		Notification: map[string]any{
			notifications.PayloadSharedSecret: share.SharedSecret,
			notifications.PayloadSender:       share.ShareWith,
		},
	})
	if err != nil {
		log.Warn("failed to send share notification",
			"share_id", share.ID,
			"notification_type", notificationType,
			"sender_host", host,
			"error", err)
		return
	}
	log.Info("share notification sent", "share_id", share.ID, "notification_type", notificationType, "sender_host", host)
}
