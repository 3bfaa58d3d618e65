package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/http/dto"
	guardUseCase "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/usecase"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/identity"
)

// IdentityMiddleware resolves the acting subject and stores it in the request
// context for handlers and downstream middleware.
func IdentityMiddleware(provider identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := provider.SubjectFromRequest(c.Request)
		ctx := WithSubject(c.Request.Context(), subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestInterceptorMiddleware evaluates every request against the policy
// engine before the handler runs, keyed by "<METHOD> <path>". A denied
// request is rejected with the decision body and a mapped status code;
// resources without a policy pass through (the engine allows by default).
//
// MUST be used after IdentityMiddleware.
func RequestInterceptorMiddleware(engine guardUseCase.Engine, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		key := guardDomain.NormalizeHTTPKey(c.Request.Method, c.Request.URL.Path)

		decision := engine.Evaluate(c.Request.Context(), subject, key, nil)
		if !decision.Allowed() {
			logger.Debug("request intercepted",
				slog.String("resource_key", key),
				slog.String("reason", string(decision.Reason)))
			c.JSON(StatusForDecision(decision), dto.MapDecisionToResponse(decision))
			c.Abort()
			return
		}

		c.Next()
	}
}
