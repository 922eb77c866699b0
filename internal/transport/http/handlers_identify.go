package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"

	"unify/internal/identity"
	"unify/internal/platform/middleware"
	"unify/pkg/domerrors"
)

// Service is the narrow slice of the resolver the transport layer needs.
type Service interface {
	Resolve(ctx context.Context, obs identity.Observation) (identity.ConsolidatedContact, error)
}

// IdentifyRequest is the wire shape of one observation.
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// ContactResponse is the consolidated view returned to callers.
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse wraps the contact in the response envelope.
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

// IdentifyHandler owns the /identify endpoint: decode, validate, normalize,
// delegate. All merge logic lives behind the Service interface.
type IdentifyHandler struct {
	service Service
	logger  *slog.Logger
}

func NewIdentifyHandler(service Service, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{service: service, logger: logger}
}

func (h *IdentifyHandler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid identify request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		writeError(w, domerrors.New(domerrors.CodeInvalidInput, "invalid request body"))
		return
	}

	obs, err := validateIdentifyRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Resolve(ctx, obs)
	if err != nil {
		// The resolver's internal taxonomy stays below this boundary; the
		// caller only learns that processing failed.
		h.logger.ErrorContext(ctx, "identity resolution failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		writeError(w, domerrors.New(domerrors.CodeInternal, "identity resolution failed"))
		return
	}

	writeJSON(w, http.StatusOK, IdentifyResponse{
		Contact: ContactResponse{
			PrimaryContactID:    result.PrimaryContactID,
			Emails:              result.Emails,
			PhoneNumbers:        result.PhoneNumbers,
			SecondaryContactIDs: result.SecondaryContactIDs,
		},
	})
}

// validateIdentifyRequest enforces the input contract the resolver assumes:
// at least one field present, email syntactically valid, phone digits-only
// length 4-15. Values are trimmed before validation.
func validateIdentifyRequest(req IdentifyRequest) (identity.Observation, error) {
	var obs identity.Observation

	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" {
			if !govalidator.IsEmail(email) {
				return obs, domerrors.New(domerrors.CodeInvalidInput, "invalid email")
			}
			obs.Email = &email
		}
	}

	if req.PhoneNumber != nil {
		phone := strings.TrimSpace(*req.PhoneNumber)
		if phone != "" {
			if !govalidator.IsNumeric(phone) || len(phone) < 4 || len(phone) > 15 {
				return obs, domerrors.New(domerrors.CodeInvalidInput, "invalid phoneNumber")
			}
			obs.PhoneNumber = &phone
		}
	}

	if obs.Email == nil && obs.PhoneNumber == nil {
		return obs, domerrors.New(domerrors.CodeInvalidInput, "either email or phoneNumber must be provided")
	}
	return obs, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation to HTTP responses so every
// handler emits the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := domerrors.CodeOf(err)
	status := domerrors.ToHTTPStatus(code)
	message := "processing failed"
	var de *domerrors.Error
	if domerrors.Is(err, domerrors.CodeInvalidInput) && errors.As(err, &de) {
		// Input problems are the only errors whose message crosses the
		// boundary.
		message = de.Message
	}
	writeJSON(w, status, map[string]string{
		"error":   string(code),
		"message": message,
	})
}
