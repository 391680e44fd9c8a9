package auth

import (
	"encoding/json"
	"strings"

	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/router"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// Sign mints a user signature for a frontend. Backend keys only.
func Sign(ctx *fasthttp.RequestCtx) {
	if CallerFrom(ctx).Role != identity.RoleBackend {
		logger.Warn("sign_forbidden", "remote", ctx.RemoteAddr().String())
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
		return
	}

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid JSON payload")
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid user ID: user ID cannot be empty")
		return
	}
	if len(userID) > maxUserIDLen {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid user ID: user ID too long")
		return
	}

	var signingKey string
	for k := range config.GetSigningKeys() {
		signingKey = k
		break
	}
	if signingKey == "" {
		logger.Error("sign_no_signing_key", "remote", ctx.RemoteAddr().String())
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "no signing key configured")
		return
	}

	sig := CreateHMACSignature(userID, signingKey)
	if err := router.WriteJSON(ctx, map[string]string{"userId": userID, "signature": sig}); err != nil {
		logger.Error("sign_encode_failed", "error", err)
	}
}
