package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/http/dto"
	guardUseCase "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/usecase"
)

// PageGuard adapts the engine to page navigation: page paths are keyed under
// the "PAGE" pseudo-method so page rules never collide with endpoint rules.
type PageGuard struct {
	engine guardUseCase.Engine
	logger *slog.Logger
}

// NewPageGuard creates a page guard backed by the given engine.
func NewPageGuard(engine guardUseCase.Engine, logger *slog.Logger) *PageGuard {
	return &PageGuard{
		engine: engine,
		logger: logger,
	}
}

// Check evaluates whether subject may open pagePath.
func (g *PageGuard) Check(
	ctx context.Context,
	subject *guardDomain.Subject,
	pagePath string,
) *guardDomain.Decision {
	key := guardDomain.NormalizePageKey(pagePath)
	return g.engine.Evaluate(ctx, subject, key, nil)
}

// Middleware guards page routes: a denied navigation is rejected with the
// decision body and a mapped status code.
//
// MUST be used after IdentityMiddleware.
func (g *PageGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())

		decision := g.Check(c.Request.Context(), subject, c.Request.URL.Path)
		if !decision.Allowed() {
			g.logger.Debug("page navigation denied",
				slog.String("page", c.Request.URL.Path),
				slog.String("reason", string(decision.Reason)))
			c.JSON(StatusForDecision(decision), dto.MapDecisionToResponse(decision))
			c.Abort()
			return
		}

		c.Next()
	}
}
