package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/protocol"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/transport"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/services/httpwrap"
)

// outgoingShareRequest is the NewShare body without a protocol; when the
// protocol is omitted a legacy WebDAV envelope with a fresh secret is used.
// An empty providerId is generated.
type outgoingShareRequest struct {
	shares.WireRequest
	Permissions string `json:"permissions"`
}

type outgoingShareResponse struct {
	ProviderID string `json:"providerId"`
	Delivered  bool   `json:"delivered"`
	JobID      string `json:"jobId,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Service) createOutgoing(w http.ResponseWriter, r *http.Request) {
	var req outgoingShareRequest
	if err := httpwrap.DecodeJSON(r, &req); err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}
	if req.ProviderID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			httpwrap.WriteError(w, r, s.log, ocmerr.Wrap(ocmerr.KindInternal, "generate provider id", err))
			return
		}
		req.ProviderID = id.String()
	}

	var (
		share shares.FederatedShareRequest
		err   error
	)
	if req.Protocol == nil {
		opts := map[string]string{}
		if req.Permissions != "" {
			opts["permissions"] = req.Permissions
		}
		share, err = s.deps.Builder.BuildWithEnvelope(req.Fields(), protocol.NewLegacySingle(uuid.NewString(), opts))
	} else {
		share, err = s.deps.Builder.Build(req.Fields(), req.Protocol)
	}
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	if s.deps.Outgoing != nil {
		if _, err := s.deps.Outgoing.Record(r.Context(), share); err != nil {
			httpwrap.WriteError(w, r, s.log, err)
			return
		}
	}

	sub, err := s.deps.Submitter.Submit(r.Context(), share)
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	resp := outgoingShareResponse{ProviderID: share.ProviderID}
	if sub.Delivered {
		resp.Delivered = true
		httpwrap.WriteJSON(w, http.StatusCreated, resp)
		return
	}
	resp.JobID = sub.JobID
	if sub.Cause != nil {
		resp.Error = ocmerr.KindOf(sub.Cause).String()
	}
	httpwrap.WriteJSON(w, http.StatusAccepted, resp)
}

func (s *Service) listOutgoing(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outgoing == nil {
		httpwrap.WriteJSON(w, http.StatusOK, []outgoing.Share{})
		return
	}
	list, err := s.deps.Outgoing.List(r.Context())
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}
	httpwrap.WriteJSON(w, http.StatusOK, list)
}

// unshare withdraws a sent share, then tells the receiving server. A failed
// notification is logged; the local record stays unshared.
func (s *Service) unshare(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outgoing == nil {
		httpwrap.WriteError(w, r, s.log, ocmerr.Rejected("sent shares are not recorded"))
		return
	}
	log := logutil.FromContext(r.Context(), s.log)

	rec, err := s.deps.Outgoing.Unshare(r.Context(), chi.URLParam(r, "providerId"))
	if err != nil {
		httpwrap.WriteError(w, r, s.log, err)
		return
	}

	if s.deps.Notifier != nil {
		err := s.deps.Notifier.Notify(r.Context(), rec.ReceiverHost, transport.Notification{
			NotificationType: notifications.TypeShareUnshared,
			ResourceType:     rec.ResourceType,
			ProviderID:       rec.ProviderID,
			Notification: map[string]any{
				notifications.PayloadSharedSecret: rec.SharedSecret,
				notifications.PayloadSender:       rec.Sender,
			},
		})
		if err != nil {
			log.Warn("failed to send unshare notification", "provider_id", rec.ProviderID, "receiver", rec.ReceiverHost, "error", err)
		} else {
			log.Info("unshare notification sent", "provider_id", rec.ProviderID, "receiver", rec.ReceiverHost)
		}
	}
	httpwrap.WriteJSON(w, http.StatusOK, rec)
}
