package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/metrics"
	"github.com/CatastropheArena/Catastrophe-Genesis/service"
)

// KeyHandlers contains HTTP handlers for the key issuance endpoints
type KeyHandlers struct {
	keyService *service.KeyService
}

// NewKeyHandlers creates new key handlers
func NewKeyHandlers(keyService *service.KeyService) *KeyHandlers {
	return &KeyHandlers{
		keyService: keyService,
	}
}

// keyRequest is the wire shape shared by fetch_key and the session token
// endpoints.
type keyRequest struct {
	PTB                core.Base64Bytes `json:"ptb" binding:"required"`
	EncKey             core.Base64Bytes `json:"enc_key" binding:"required"`
	EncVerificationKey core.Base64Bytes `json:"enc_verification_key" binding:"required"`
	RequestSignature   core.Base64Bytes `json:"request_signature" binding:"required"`
	Certificate        core.Certificate `json:"certificate" binding:"required"`
}

func (r *keyRequest) domain() *core.KeyRequest {
	return &core.KeyRequest{
		PTB:                r.PTB,
		EncKey:             r.EncKey,
		EncVerificationKey: r.EncVerificationKey,
		RequestSignature:   r.RequestSignature,
		Certificate:        r.Certificate,
	}
}

// FetchKey handles the key issuance request
func (h *KeyHandlers) FetchKey(c *gin.Context) {
	requestID := requestScope(c, "fetch_key")

	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "fetch_key", core.ErrInvalidInput)
		return
	}

	keys, err := h.keyService.FetchKey(c.Request.Context(), req.domain(), requestID)
	if err != nil {
		respondError(c, "fetch_key", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"decryption_keys": keys})
}

// Service returns the public registration record with the proof of
// possession of the master key
func (h *KeyHandlers) Service(c *gin.Context) {
	requestScope(c, "service")
	c.JSON(http.StatusOK, h.keyService.Service())
}

// SessionToken validates a request and mints a bearer session token
func (h *KeyHandlers) SessionToken(c *gin.Context) {
	requestID := requestScope(c, "session_token")

	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "session_token", core.ErrInvalidInput)
		return
	}

	token, claims, err := h.keyService.CreateSessionToken(c.Request.Context(), req.domain(), requestID)
	if err != nil {
		respondError(c, "session_token", err)
		return
	}

	resp := gin.H{
		"auth_token": token,
		"expires_at": claims.ExpiresAtMs,
	}
	if claims.ProfileID != "" {
		resp["profile"] = claims.ProfileID
	}
	c.JSON(http.StatusOK, resp)
}

// EncryptedSessionToken mints a session token sealed to the request's
// encryption key
func (h *KeyHandlers) EncryptedSessionToken(c *gin.Context) {
	requestID := requestScope(c, "encrypted_session_token")

	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "encrypted_session_token", core.ErrInvalidInput)
		return
	}

	sealed, _, err := h.keyService.CreateEncryptedSessionToken(c.Request.Context(), req.domain(), requestID)
	if err != nil {
		respondError(c, "encrypted_session_token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"encrypted_data": core.Base64Bytes(sealed),
	})
}

// Logout revokes a session token
func (h *KeyHandlers) Logout(c *gin.Context) {
	requestScope(c, "logout")

	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "logout", core.ErrInvalidInput)
		return
	}

	if err := h.keyService.Logout(c.Request.Context(), req.Token); err != nil {
		respondError(c, "logout", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Credentials returns the session claims behind the bearer token
func (h *KeyHandlers) Credentials(c *gin.Context) {
	requestScope(c, "credentials")

	claims, exists := getSessionClaims(c)
	if !exists {
		respondError(c, "credentials", core.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          claims.User.String(),
		"session_vk":    core.Base64Bytes(claims.SessionVK),
		"creation_time": claims.CreationTime,
		"ttl_min":       claims.TTLMin,
		"expires_at":    claims.ExpiresAtMs,
		"profile":       claims.ProfileID,
	})
}

// Health reports process liveness
func (h *KeyHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestScope pulls the correlation id and SDK headers into the request
// log and returns the id for the service layer.
func requestScope(c *gin.Context, endpoint string) string {
	requestID := c.GetHeader("Request-Id")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Set("requestID", requestID)

	fields := log.Fields{
		"endpoint":   endpoint,
		"request_id": requestID,
	}
	if sdkType := c.GetHeader("Client-Sdk-Type"); sdkType != "" {
		fields["sdk_type"] = sdkType
	}
	if sdkVersion := c.GetHeader("Client-Sdk-Version"); sdkVersion != "" {
		fields["sdk_version"] = sdkVersion
	}
	if apiVersion := c.GetHeader("Client-Target-Api-Version"); apiVersion != "" {
		fields["target_api_version"] = apiVersion
	}
	log.WithFields(fields).Debug("request received")
	return requestID
}

// respondError maps any pipeline error onto the closed taxonomy: a status
// code, a stable tag, and a generic message. Internal denial detail never
// reaches the client.
func respondError(c *gin.Context, endpoint string, err error) {
	kind, ok := err.(core.ErrorKind)
	if !ok {
		kind = core.ErrFailure
	}
	metrics.ErrorsTotal.WithLabelValues(endpoint, kind.Tag()).Inc()
	c.JSON(kind.Status(), gin.H{
		"error": kind.Message(),
		"tag":   kind.Tag(),
	})
}

// MetricsMiddleware records request counts and latency per endpoint.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	}
}
