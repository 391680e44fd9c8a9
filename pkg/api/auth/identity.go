package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"

	"github.com/valyala/fasthttp"
)

// ResolutionError is a caller resolution failure with its HTTP status.
type ResolutionError struct {
	Type    string
	Message string
	Code    int
}

func (e *ResolutionError) Error() string {
	return e.Message
}

var (
	ErrMissingSignature = &ResolutionError{"missing_signature", "missing signature headers", fasthttp.StatusUnauthorized}
	ErrInvalidSignature = &ResolutionError{"invalid_signature", "invalid signature", fasthttp.StatusUnauthorized}
	ErrUserTooLong      = &ResolutionError{"user_too_long", "user id too long", fasthttp.StatusBadRequest}
)

const maxUserIDLen = 128

// SecConfig mirrors the security section of the config.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

// SecConfigFrom builds a SecConfig from the effective config.
func SecConfigFrom(c *config.Config) SecConfig {
	sc := SecConfig{
		AllowedOrigins: append([]string{}, c.Security.CORS.AllowedOrigins...),
		RPS:            c.Security.RateLimit.RPS,
		Burst:          c.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, c.Security.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range c.Security.APIKeys.Backend {
		sc.BackendKeys[k] = struct{}{}
	}
	for _, k := range c.Security.APIKeys.Frontend {
		sc.FrontendKeys[k] = struct{}{}
	}
	for _, k := range c.Security.APIKeys.Admin {
		sc.AdminKeys[k] = struct{}{}
	}
	return sc
}

// CreateHMACSignature signs a user token identifier with key.
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature checks signature against every configured signing key.
func VerifyHMACSignature(userID, signature string) bool {
	for k := range config.GetSigningKeys() {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

const callerKey = "skillsync.caller"

// resolveCaller turns the request's role and user headers into a Caller.
// Backend keys are trusted to name the user; frontend keys must present a
// signature minted by a backend, or no user at all.
func resolveCaller(ctx *fasthttp.RequestCtx, role identity.Role) (identity.Caller, *ResolutionError) {
	tr := telemetry.Track("auth.resolve_caller")
	defer tr.Finish()

	userID := strings.TrimSpace(userIDFrom(ctx))
	sig := strings.TrimSpace(signatureFrom(ctx))
	c := identity.Caller{Role: role}

	if len(userID) > maxUserIDLen {
		return c, ErrUserTooLong
	}

	switch role {
	case identity.RoleAdmin:
		return c, nil
	case identity.RoleBackend:
		if sig == "" {
			c.Token = userID
			return c, nil
		}
	case identity.RoleFrontend:
		if sig == "" && userID == "" {
			// anonymous frontend caller
			return c, nil
		}
	}

	if sig == "" || userID == "" {
		logger.Warn("missing_signature_headers", "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String())
		return c, ErrMissingSignature
	}
	tr.Mark("verify_signature")
	if !VerifyHMACSignature(userID, sig) {
		logger.Warn("invalid_signature", "remote", ctx.RemoteAddr().String(), "path", string(ctx.Path()))
		return c, ErrInvalidSignature
	}
	logger.Debug("signature_verified", "remote", ctx.RemoteAddr().String(), "path", string(ctx.Path()))
	c.Token = userID
	return c, nil
}

// CallerFrom returns the caller the gateway attached to ctx.
func CallerFrom(ctx *fasthttp.RequestCtx) identity.Caller {
	c, _ := ctx.UserValue(callerKey).(identity.Caller)
	return c
}

// SetCaller attaches c to the request.
func SetCaller(ctx *fasthttp.RequestCtx, c identity.Caller) {
	ctx.SetUserValue(callerKey, c)
}

// Context returns a context carrying the request's caller. It is detached
// from the fasthttp request so it stays valid for work that outlives the
// handler.
func Context(ctx *fasthttp.RequestCtx) context.Context {
	return identity.With(context.Background(), CallerFrom(ctx))
}
