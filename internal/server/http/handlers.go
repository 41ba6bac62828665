package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/server/services"
)

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.writeDomainError(w, r, "qr_scan", common.ErrValidation.WithMessage(err.Error()))
		return
	}

	// the body may carry the end user's origin only when a trusted frontend relays the scan
	var client services.ClientInfo
	if h.fromTrustedProxy(r) {
		client.IPAddress = strings.TrimSpace(req.IPAddress)
		client.UserAgent = strings.TrimSpace(req.UserAgent)
	}
	if client.IPAddress == "" {
		client.IPAddress = h.readIP(r)
	}
	if client.UserAgent == "" {
		client.UserAgent = r.UserAgent()
	}

	q := r.URL.Query()
	res, err := h.verifier.HandleScan(r.Context(), services.ScanRequest{
		StoreID:   chi.URLParam(r, "storeId"),
		QRVersion: strings.TrimSpace(q.Get("v")),
		Timestamp: strings.TrimSpace(q.Get("t")),
		Client:    client,
	})
	if err != nil {
		h.writeDomainError(w, r, "qr_scan", err)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Success:      true,
		SessionToken: res.SessionToken,
		StoreInfo:    res.StoreInfo,
		FraudWarning: res.FraudWarning,
		ExpiresAt:    res.ExpiresAt,
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(common.SessionTokenHeaderName))
	if token == "" {
		h.writeDomainError(w, r, "verification_submit",
			common.ErrInvalidSessionToken.WithMessage("missing "+common.SessionTokenHeaderName+" header"))
		return
	}

	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeDomainError(w, r, "verification_submit", common.ErrValidation.WithMessage(err.Error()))
		return
	}
	amount, err := rawAmount(req.TransactionAmount)
	if err != nil {
		h.writeDomainError(w, r, "verification_submit", common.ErrValidation.WithMessage(err.Error()))
		return
	}

	client := services.ClientInfo{IPAddress: h.readIP(r), UserAgent: r.UserAgent()}
	res, err := h.verifier.HandleSubmission(r.Context(), token, services.Submission{
		TransactionTime:   strings.TrimSpace(req.TransactionTime),
		TransactionAmount: amount,
		PhoneNumber:       req.PhoneNumber,
	}, nil, client)
	if err != nil {
		h.writeDomainError(w, r, "verification_submit", err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success:           true,
		VerificationID:    res.VerificationID,
		Status:            res.Status,
		ValidationResults: res.Results,
		NextSteps:         res.NextSteps,
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	d, err := h.verifier.SessionDetails(r.Context(), chi.URLParam(r, "sessionToken"))
	if err != nil {
		h.writeDomainError(w, r, "verification_session", err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Success:        true,
		SessionID:      d.Session.ID,
		StoreInfo:      d.Store,
		Status:         d.Session.Status,
		QRVersion:      d.Session.QRVersion,
		FraudWarning:   d.Session.FraudWarning,
		CreatedAt:      d.Session.CreatedAt,
		ExpiresAt:      d.Session.ExpiresAt,
		ToleranceHints: d.Hints,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	v, err := h.verifier.GetVerification(r.Context(), chi.URLParam(r, "verificationId"))
	if err != nil {
		h.writeDomainError(w, r, "verification_status", err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Success:           true,
		VerificationID:    v.ID,
		SessionID:         v.SessionID,
		StoreID:           v.StoreID,
		Status:            v.Status,
		ValidationResults: v.Results,
		SubmittedAt:       v.SubmittedAt,
	})
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.CleanupExpiredSessions(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "session_cleanup", err)
		return
	}
	h.log.Info(r.Context(), "manual session sweep", "operator", operatorFromContext(r.Context()), "expired_count", n)
	writeJSON(w, http.StatusOK, cleanupResponse{Success: true, ExpiredCount: n})
}
