package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contractseal/internal/domain"
	"contractseal/internal/infra/artifacts"
	"contractseal/internal/usecase"
	"contractseal/pkg/qrpayload"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	maxBatchVerify         = 100
	qrImageSize            = 256
	maxAccessTokenTTLHours = 10 * 365 * 24
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type registerContractRequest struct {
	ContractID string            `json:"contract_id"`
	Parties    []string          `json:"parties"`
	Fields     map[string]string `json:"fields"`
}

type editContractRequest struct {
	Fields map[string]string `json:"fields"`
}

type signContractRequest struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Reason     string `json:"reason"`
	Location   string `json:"location"`
	DeviceInfo string `json:"device_info"`
}

type verifySignatureRequest struct {
	ContractID    string `json:"contract_id,omitempty"`
	ContentBase64 string `json:"content_base64"`
	StoredHash    string `json:"stored_hash"`
	StoredHMAC    string `json:"stored_hmac"`
}

type verifyBatchRequest struct {
	Requests []verifySignatureRequest `json:"requests"`
}

type verifyQRRequest struct {
	Payload    string `json:"payload"`
	ContractID string `json:"contract_id"`
	Hash       string `json:"hash"`
}

type issueTokenRequest struct {
	TTLHours *int `json:"ttl_hours,omitempty"`
}

type contractResponse struct {
	ContractID   string            `json:"contract_id"`
	Parties      []string          `json:"parties"`
	Fields       map[string]string `json:"fields"`
	Status       string            `json:"status"`
	OriginalHash string            `json:"original_hash,omitempty"`
	HasSigned    bool              `json:"has_signed_artifact"`
	Version      int64             `json:"version"`
	UpdatedAt    string            `json:"updated_at,omitempty"`
}

type signatureResponse struct {
	ID          string `json:"id"`
	ContractID  string `json:"contract_id"`
	Hash        string `json:"hash"`
	HMAC        string `json:"hmac,omitempty"`
	QRPayload   string `json:"qr_payload"`
	SignedAt    string `json:"signed_at"`
	ExpiresAt   string `json:"expires_at"`
	Expired     bool   `json:"expired"`
	SignerID    string `json:"signer_id,omitempty"`
	SignerEmail string `json:"signer_email,omitempty"`
	Location    string `json:"location,omitempty"`
}

type verificationResponse struct {
	ContractID      string             `json:"contract_id"`
	Outcome         string             `json:"outcome"`
	Reason          string             `json:"reason,omitempty"`
	Valid           bool               `json:"valid"`
	IntegrityIntact bool               `json:"integrity_intact"`
	CheckedAt       string             `json:"checked_at"`
	Signature       *signatureResponse `json:"signature,omitempty"`
}

type auditEventResponse struct {
	Seq           int64           `json:"seq"`
	EventType     string          `json:"event_type"`
	Action        string          `json:"action"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id,omitempty"`
	Result        string          `json:"result"`
	Outcome       string          `json:"outcome,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	PrevEventHash string          `json:"prev_event_hash"`
	EventHash     string          `json:"event_hash"`
	CreatedAt     string          `json:"created_at"`
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	if s.artifacts != nil {
		res := s.artifacts.Resolution()
		body["storage"] = gin.H{
			"state":     string(res.State),
			"root":      res.Root,
			"primary":   res.Primary,
			"attempted": res.Attempted,
		}
		switch res.State {
		case artifacts.StateDegraded:
			body["status"] = "degraded"
		case artifacts.StateFailed:
			body["status"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, body)
}

func (s *Server) handleRegisterContract(c *gin.Context) {
	var req registerContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	contract, err := s.workflow.Register(c.Request.Context(), req.ContractID, req.Parties, req.Fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toContractResponse(contract))
}

func (s *Server) handleGetContract(c *gin.Context) {
	contract, err := s.store.GetContract(c.Request.Context(), c.Param("contract_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(*contract))
}

func (s *Server) handleEditContract(c *gin.Context) {
	var req editContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	contract, err := s.workflow.Edit(c.Request.Context(), c.Param("contract_id"), req.Fields, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(contract))
}

func (s *Server) handleGenerateDocument(c *gin.Context) {
	res, err := s.workflow.GenerateDocument(c.Request.Context(), c.Param("contract_id"), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"contract_id":       c.Param("contract_id"),
		"artifact_location": res.ArtifactLocation,
		"hash":              res.Hash,
		"version":           res.Version,
		"status":            string(domain.StatusPendingSignature),
	})
}

func (s *Server) handleSignContract(c *gin.Context) {
	var req signContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	signer := domain.SignerInfo{
		UserID:   req.UserID,
		Name:     req.Name,
		Email:    req.Email,
		Reason:   req.Reason,
		Location: req.Location,
	}
	sctx := domain.SigningContext{
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		DeviceInfo: req.DeviceInfo,
	}
	res, err := s.workflow.Sign(c.Request.Context(), c.Param("contract_id"), signer, sctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"contract_id":              c.Param("contract_id"),
		"status":                   string(domain.StatusSigned),
		"reference_id":             res.ReferenceID,
		"signed_artifact_location": res.SignedArtifactLocation,
		"signature":                s.toSignatureResponse(res.Signature, true),
	})
}

func (s *Server) handleVerifyContract(c *gin.Context) {
	res, err := s.workflow.Verify(c.Request.Context(), c.Param("contract_id"), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract_id": c.Param("contract_id"),
		"verified":    res.Verified,
		"status":      string(res.Status),
		"integrity":   s.toVerificationResponse(res.Integrity),
	})
}

func (s *Server) handleDownloadSigned(c *gin.Context) {
	data, filename, err := s.workflow.DownloadSigned(c.Request.Context(), c.Param("contract_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (s *Server) handleListArtifacts(c *gin.Context) {
	contractID := c.Param("contract_id")
	records, err := s.store.ListArtifacts(c.Request.Context(), contractID)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]gin.H, 0, len(records))
	for _, a := range records {
		items = append(items, gin.H{
			"kind":       string(a.Kind),
			"version":    a.Version,
			"location":   a.Location,
			"hash":       a.Hash,
			"size":       a.Size,
			"created_at": a.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	body := gin.H{"contract_id": contractID, "artifacts": items}
	if s.artifacts != nil {
		keys, err := s.artifacts.List(c.Request.Context(), contractID)
		if err != nil {
			writeError(c, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		body["stored_keys"] = keys
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSignatureHistory(c *gin.Context) {
	contractID := c.Param("contract_id")
	records, err := s.verifier.GetSignatureHistory(c.Request.Context(), contractID)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]signatureResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, *s.toSignatureResponse(rec, true))
	}
	c.JSON(http.StatusOK, gin.H{"contract_id": contractID, "signatures": items})
}

func (s *Server) handleVerifySignature(c *gin.Context) {
	if !s.enforceRateLimit(c, routeVerify) {
		return
	}
	var req verifySignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_CONTENT", "content_base64 is not valid base64")
		return
	}
	res, err := s.verifier.ValidateSignatureWithAudit(c.Request.Context(), c.Param("contract_id"), content, req.StoredHash, req.StoredHMAC, actorID(c))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.toVerificationResponse(res))
}

func (s *Server) handleVerifyBatch(c *gin.Context) {
	if !s.enforceRateLimit(c, routeVerifyBatch) {
		return
	}
	var req verifyBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if len(req.Requests) == 0 || len(req.Requests) > maxBatchVerify {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_BATCH", fmt.Sprintf("batch must hold between 1 and %d requests", maxBatchVerify))
		return
	}
	actor := actorID(c)
	requests := make([]usecase.VerifyRequest, 0, len(req.Requests))
	for i, item := range req.Requests {
		if strings.TrimSpace(item.ContractID) == "" {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_BATCH", fmt.Sprintf("requests[%d]: contract_id is required", i))
			return
		}
		content, err := base64.StdEncoding.DecodeString(item.ContentBase64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_CONTENT", fmt.Sprintf("requests[%d]: content_base64 is not valid base64", i))
			return
		}
		requests = append(requests, usecase.VerifyRequest{
			ContractID: item.ContractID,
			Content:    content,
			StoredHash: item.StoredHash,
			StoredHMAC: item.StoredHMAC,
			ActorID:    actor,
		})
	}
	results, err := s.verifier.VerifyMany(c.Request.Context(), requests)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]verificationResponse, 0, len(results))
	for _, res := range results {
		items = append(items, s.toVerificationResponse(res))
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (s *Server) handleQRCode(c *gin.Context) {
	contractID := c.Param("contract_id")
	records, err := s.verifier.GetSignatureHistory(c.Request.Context(), contractID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(records) == 0 || records[0].QRCode == "" {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "contract has no signature")
		return
	}
	png, err := qrcode.Encode(records[0].QRCode, qrcode.Medium, qrImageSize)
	if err != nil {
		writeErrorCode(c, http.StatusInternalServerError, "QR_ENCODE_FAILED", err.Error())
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleVerifyQR(c *gin.Context) {
	if !s.enforceRateLimit(c, routeQRVerify) {
		return
	}
	var req verifyQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	body := gin.H{"valid": qrpayload.Verify(req.Payload, req.ContractID, req.Hash)}
	if parsed, err := qrpayload.Parse(req.Payload); err == nil {
		body["parsed"] = gin.H{
			"contract_id": parsed.ContractID,
			"hash_prefix": parsed.HashPrefix,
			"sig_prefix":  parsed.SigPrefix,
			"timestamp":   parsed.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleAuditTrail(c *gin.Context) {
	contractID := c.Param("contract_id")
	events, err := s.audit.Trail(c.Request.Context(), contractID)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, toAuditEventResponse(e))
	}
	body := gin.H{"contract_id": contractID, "events": items, "chain_valid": true}
	if err := usecase.VerifyAuditEvents(contractID, events); err != nil {
		body["chain_valid"] = false
		body["chain_error"] = err.Error()
		s.logger.Error("audit chain verification failed", "contract_id", contractID, "error", err)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleIssueAccessToken(c *gin.Context) {
	contractID := c.Param("contract_id")
	var req issueTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
	}
	if _, err := s.store.GetContract(c.Request.Context(), contractID); err != nil {
		writeError(c, err)
		return
	}
	ttl := s.cfg.AccessTokenTTL()
	if req.TTLHours != nil {
		hours := *req.TTLHours
		if hours < 0 || hours > maxAccessTokenTTLHours {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", fmt.Sprintf("ttl_hours must be between 0 and %d", maxAccessTokenTTLHours))
			return
		}
		ttl = time.Duration(hours) * time.Hour
	}
	plaintext, token, err := s.tokens.Issue(c.Request.Context(), contractID, actorID(c), ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{
		"contract_id": contractID,
		"token":       plaintext,
		"path":        "/v1/shared/" + plaintext,
		"created_at":  token.CreatedAt.Format(time.RFC3339Nano),
	}
	if token.ExpiresAt != nil {
		body["expires_at"] = token.ExpiresAt.Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusCreated, body)
}

// handleShared is the unauthenticated share link. It reveals status and the
// latest signature summary, never fields or the HMAC.
func (s *Server) handleShared(c *gin.Context) {
	if !s.enforceRateLimit(c, routeShared) {
		return
	}
	token, err := s.tokens.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	contract, err := s.store.GetContract(c.Request.Context(), token.ContractID)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{
		"contract_id": contract.ID,
		"status":      string(contract.Status),
	}
	records, err := s.store.ListSignatures(c.Request.Context(), contract.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(records) > 0 {
		body["signature"] = s.toSignatureResponse(records[0], false)
	}
	c.JSON(http.StatusOK, body)
}

func toContractResponse(contract domain.Contract) contractResponse {
	out := contractResponse{
		ContractID:   contract.ID,
		Parties:      contract.Parties,
		Fields:       contract.Fields,
		Status:       string(contract.Status),
		OriginalHash: contract.OriginalHash,
		HasSigned:    contract.SignedLocation != "",
		Version:      contract.Version,
	}
	if out.Parties == nil {
		out.Parties = []string{}
	}
	if out.Fields == nil {
		out.Fields = map[string]string{}
	}
	if !contract.UpdatedAt.IsZero() {
		out.UpdatedAt = contract.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *Server) toSignatureResponse(rec domain.SignatureRecord, withMAC bool) *signatureResponse {
	out := &signatureResponse{
		ID:         rec.ID,
		ContractID: rec.ContractID,
		Hash:       rec.Hash,
		QRPayload:  rec.QRCode,
		SignedAt:   rec.SignedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:  rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		Expired:    rec.ExpiredAt(s.clock()),
	}
	if withMAC {
		out.HMAC = rec.HMAC
		out.SignerID = rec.SignerID
		out.SignerEmail = rec.SignerEmail
		out.Location = rec.Location
	}
	return out
}

func (s *Server) toVerificationResponse(res domain.VerificationResult) verificationResponse {
	out := verificationResponse{
		ContractID:      res.ContractID,
		Outcome:         string(res.Outcome),
		Reason:          res.Reason,
		Valid:           res.Valid(),
		IntegrityIntact: res.IntegrityIntact(),
		CheckedAt:       res.CheckedAt.UTC().Format(time.RFC3339Nano),
	}
	if res.Record != nil {
		out.Signature = s.toSignatureResponse(*res.Record, false)
	}
	return out
}

func toAuditEventResponse(e domain.AuditEvent) auditEventResponse {
	out := auditEventResponse{
		Seq:           e.Seq,
		EventType:     string(e.EventType),
		Action:        string(e.Action),
		ActorType:     string(e.ActorType),
		ActorID:       e.ActorID,
		Result:        string(e.Result),
		Outcome:       string(e.Outcome),
		ErrorCode:     e.ErrorCode,
		PrevEventHash: e.PrevEventHash,
		EventHash:     e.EventHash,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	switch p := e.Payload.(type) {
	case []byte:
		out.Payload = json.RawMessage(p)
	case json.RawMessage:
		out.Payload = p
	default:
		if raw, _, err := usecase.CanonicalAuditPayload(p); err == nil {
			out.Payload = raw
		}
	}
	if len(out.Payload) == 0 {
		out.Payload = json.RawMessage("{}")
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	var details map[string]any
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrTokenInvalid):
		status, code = http.StatusNotFound, "TOKEN_INVALID"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrSignerNotParty):
		status, code = http.StatusForbidden, "SIGNER_NOT_PARTY"
	case errors.Is(err, domain.ErrPrecondition):
		status, code = http.StatusConflict, "PRECONDITION_FAILED"
	case errors.Is(err, domain.ErrStorage):
		status, code = http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
		var se *domain.StorageError
		if errors.As(err, &se) {
			details = map[string]any{"attempted": se.Attempted}
		}
	case errors.Is(err, domain.ErrTransientIO):
		status, code = http.StatusInternalServerError, "ARTIFACT_IO"
	case errors.Is(err, domain.ErrConfiguration):
		status, code = http.StatusInternalServerError, "CONFIGURATION"
	}
	c.JSON(status, errorResponse{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
