package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// testClock is a manually advanced clock shared by engine tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// spyGate counts confirmations and answers with a fixed value. An optional
// release channel lets tests hold a prompt open.
type spyGate struct {
	mu      sync.Mutex
	calls   int
	answer  bool
	release chan struct{}
}

func (g *spyGate) Confirm(ctx context.Context, message string) (bool, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return g.answer, nil
}

func (g *spyGate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// stubPermissions is a permission collaborator with a scripted outcome.
type stubPermissions struct {
	granted bool
	err     error
	calls   int
}

func (p *stubPermissions) HasPermission(
	_ context.Context,
	_ *guardDomain.Subject,
	_ string,
) (bool, error) {
	p.calls++
	return p.granted, p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func studentSubject() *guardDomain.Subject {
	return &guardDomain.Subject{
		UserID:        "student-1",
		Role:          guardDomain.StudentRole,
		Authenticated: true,
		TokenValid:    true,
	}
}

func teacherSubject() *guardDomain.Subject {
	return &guardDomain.Subject{
		UserID:        "teacher-1",
		Role:          guardDomain.TeacherRole,
		Authenticated: true,
		TokenValid:    true,
		Memberships:   map[string][]string{"class_ids": {"c1", "c2"}},
	}
}

func newTestEngine(clock *testClock, opts ...Option) Engine {
	base := []Option{WithLogger(testLogger())}
	if clock != nil {
		base = append(base, WithClock(clock.Now))
	}
	return NewEngine(append(base, opts...)...)
}

func TestEngine_NoPolicyConfigured(t *testing.T) {
	engine := newTestEngine(nil)

	decision := engine.Evaluate(context.Background(), studentSubject(), "GET /unconfigured/42", nil)

	assert.True(t, decision.Allowed())
	assert.Equal(t, guardDomain.ReasonNoPolicyConfigured, decision.Reason)
	assert.Equal(t, "GET /unconfigured/:id", decision.ResourceKey)

	// The default allow still leaves an audit trail.
	audit := engine.RecentAudit(1)
	require.Len(t, audit, 1)
	assert.Equal(t, guardDomain.ReasonNoPolicyConfigured, audit[0].Reason)
}

func TestEngine_RegisterRule(t *testing.T) {
	t.Run("Success_KeyNormalizedOnRegistration", func(t *testing.T) {
		engine := newTestEngine(nil)

		err := engine.RegisterRule(&guardDomain.PolicyRule{ResourceKey: "GET /homework/42"})
		require.NoError(t, err)

		_, ok := engine.Rule("GET /homework/99")
		assert.True(t, ok, "rules registered under a raw key must match any id")
	})

	t.Run("Success_DuplicateKeyOverwrites", func(t *testing.T) {
		engine := newTestEngine(nil)

		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "homework.delete",
			Description: "first",
		}))
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "homework.delete",
			Description: "second",
		}))

		rule, ok := engine.Rule("homework.delete")
		require.True(t, ok)
		assert.Equal(t, "second", rule.Description)
	})

	t.Run("Error_NilRule", func(t *testing.T) {
		engine := newTestEngine(nil)
		assert.Error(t, engine.RegisterRule(nil))
	})

	t.Run("Error_InvalidRule", func(t *testing.T) {
		engine := newTestEngine(nil)
		err := engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "homework.delete",
			Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition}},
		})
		assert.Error(t, err)
	})
}

func TestEngine_AuthenticationChecks(t *testing.T) {
	engine := newTestEngine(nil)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{ResourceKey: "homework.submit"}))

	t.Run("Deny_NotAuthenticated", func(t *testing.T) {
		subject := studentSubject()
		subject.Authenticated = false

		decision := engine.Evaluate(context.Background(), subject, "homework.submit", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonNotAuthenticated, decision.Reason)
	})

	t.Run("Deny_NilSubject", func(t *testing.T) {
		decision := engine.Evaluate(context.Background(), nil, "homework.submit", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonNotAuthenticated, decision.Reason)
	})

	t.Run("Deny_TokenInvalid", func(t *testing.T) {
		subject := studentSubject()
		subject.TokenValid = false

		decision := engine.Evaluate(context.Background(), subject, "homework.submit", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonTokenInvalid, decision.Reason)
	})
}

func TestEngine_RoleCheck(t *testing.T) {
	engine := newTestEngine(nil)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey:  "homework.correct",
		AllowedRoles: []guardDomain.Role{guardDomain.TeacherRole},
	}))

	t.Run("Deny_StudentAlwaysRejected", func(t *testing.T) {
		contexts := []*guardDomain.EvalContext{
			nil,
			{},
			{Fields: map[string]string{"resource_owner_id": "student-1"}},
			{Confirmed: true},
		}
		for _, evalCtx := range contexts {
			decision := engine.Evaluate(context.Background(), studentSubject(), "homework.correct", evalCtx)

			assert.False(t, decision.Allowed())
			assert.Equal(t, guardDomain.ReasonRoleNotAllowed, decision.Reason)
			assert.Contains(t, decision.Message, "teacher", "message must list the allowed roles")
		}
	})

	t.Run("Allow_TeacherAdmitted", func(t *testing.T) {
		decision := engine.Evaluate(context.Background(), teacherSubject(), "homework.correct", nil)
		assert.True(t, decision.Allowed())
	})
}

func TestEngine_PermissionCheck(t *testing.T) {
	newRule := func() *guardDomain.PolicyRule {
		return &guardDomain.PolicyRule{
			ResourceKey:        "homework.export",
			RequiredPermission: "homework:export",
		}
	}

	t.Run("Allow_SubjectHoldsGrant", func(t *testing.T) {
		engine := newTestEngine(nil)
		require.NoError(t, engine.RegisterRule(newRule()))

		subject := studentSubject()
		subject.Permissions = []string{"homework:export"}

		decision := engine.Evaluate(context.Background(), subject, "homework.export", nil)
		assert.True(t, decision.Allowed())
	})

	t.Run("Allow_WildcardGrant", func(t *testing.T) {
		engine := newTestEngine(nil)
		require.NoError(t, engine.RegisterRule(newRule()))

		subject := studentSubject()
		subject.Permissions = []string{"*"}

		decision := engine.Evaluate(context.Background(), subject, "homework.export", nil)
		assert.True(t, decision.Allowed())
	})

	t.Run("Deny_MissingGrant", func(t *testing.T) {
		engine := newTestEngine(nil)
		require.NoError(t, engine.RegisterRule(newRule()))

		decision := engine.Evaluate(context.Background(), studentSubject(), "homework.export", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonPermissionDenied, decision.Reason)
	})

	t.Run("Deny_CollaboratorFailureFailsClosed", func(t *testing.T) {
		permissions := &stubPermissions{granted: true, err: errors.New("identity provider unreachable")}
		engine := newTestEngine(nil, WithPermissionChecker(permissions))
		require.NoError(t, engine.RegisterRule(newRule()))

		decision := engine.Evaluate(context.Background(), studentSubject(), "homework.export", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonPermissionDenied, decision.Reason)
		assert.Equal(t, 1, permissions.calls)
	})
}

func TestEngine_CacheIdempotence(t *testing.T) {
	// A DailyQuota rule with limit=1 distinguishes a cached Allow from a
	// fresh evaluation: the first call consumes the quota, so any fresh
	// evaluation afterwards must deny.
	clock := newTestClock()
	engine := newTestEngine(clock)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey: "homework.submit",
		Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition, Limit: 1}},
	}))

	subject := studentSubject()

	first := engine.Evaluate(context.Background(), subject, "homework.submit", nil)
	assert.True(t, first.Allowed())

	// Served from cache: still Allow even though the quota is spent.
	second := engine.Evaluate(context.Background(), subject, "homework.submit", nil)
	assert.True(t, second.Allowed())
	assert.Same(t, first, second, "second call must be the cached decision")

	// A cache hit is a repeat of a recorded decision: no new audit entry.
	assert.Len(t, engine.RecentAudit(10), 1)

	// After the boundary clear, a fresh evaluation sees the spent quota.
	engine.ClearCache(subject.UserID)
	third := engine.Evaluate(context.Background(), subject, "homework.submit", nil)
	assert.False(t, third.Allowed())
	assert.Equal(t, guardDomain.ReasonDailyLimitReached, third.Reason)
}

func TestEngine_CacheExpiry(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(clock)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey: "homework.submit",
		Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition, Limit: 1}},
	}))

	subject := studentSubject()
	assert.True(t, engine.Evaluate(context.Background(), subject, "homework.submit", nil).Allowed())

	// Past the default TTL the cached decision is gone and the fresh
	// evaluation hits the exhausted quota.
	clock.Advance(DefaultCacheTTL + time.Second)
	decision := engine.Evaluate(context.Background(), subject, "homework.submit", nil)

	assert.False(t, decision.Allowed())
	assert.Equal(t, guardDomain.ReasonDailyLimitReached, decision.Reason)
}

func TestEngine_NonEmptyContextSkipsCache(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(clock)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey: "homework.submit",
		Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition, Limit: 1}},
	}))

	subject := studentSubject()
	evalCtx := &guardDomain.EvalContext{Fields: map[string]string{"class_id": "c1"}}

	assert.True(t, engine.Evaluate(context.Background(), subject, "homework.submit", evalCtx).Allowed())

	// Per-call facts force a fresh evaluation, which sees the spent quota.
	decision := engine.Evaluate(context.Background(), subject, "homework.submit", evalCtx)
	assert.False(t, decision.Allowed())
	assert.Equal(t, guardDomain.ReasonDailyLimitReached, decision.Reason)
}

func TestEngine_DeniedEvaluationNeverConsumesQuota(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(clock)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey: "homework.submit",
		Conditions: []guardDomain.ConditionSpec{
			{Kind: guardDomain.DailyQuotaCondition, Limit: 1},
			{Kind: guardDomain.OwnershipCondition, Field: "resource_owner_id"},
		},
	}))

	subject := studentSubject()

	// Quota passes, ownership denies: the quota must not be consumed.
	denied := engine.Evaluate(context.Background(), subject, "homework.submit",
		&guardDomain.EvalContext{Fields: map[string]string{"resource_owner_id": "someone-else"}})
	require.False(t, denied.Allowed())
	require.Equal(t, guardDomain.ReasonOwnershipDenied, denied.Reason)

	// The full quota is still available.
	allowed := engine.Evaluate(context.Background(), subject, "homework.submit",
		&guardDomain.EvalContext{Fields: map[string]string{"resource_owner_id": subject.UserID}})
	assert.True(t, allowed.Allowed())
}

func TestEngine_Cooldown(t *testing.T) {
	// Non-empty contexts keep the cache out of the way so every call is a
	// fresh evaluation.
	scoped := func() *guardDomain.EvalContext {
		return &guardDomain.EvalContext{Fields: map[string]string{"class_id": "c1"}}
	}

	t.Run("Deny_WithinCooldown", func(t *testing.T) {
		clock := newTestClock()
		engine := newTestEngine(clock)
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "ai.ask",
			Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.CooldownCondition, Cooldown: 5 * time.Second}},
		}))

		first := engine.Evaluate(context.Background(), studentSubject(), "ai.ask", scoped())
		require.True(t, first.Allowed())

		clock.Advance(100 * time.Millisecond)
		second := engine.Evaluate(context.Background(), studentSubject(), "ai.ask", scoped())

		assert.False(t, second.Allowed())
		assert.Equal(t, guardDomain.ReasonCooldownActive, second.Reason)
		assert.Contains(t, second.Message, "wait", "message must carry the remaining time")
	})

	t.Run("Allow_AfterCooldownElapsed", func(t *testing.T) {
		clock := newTestClock()
		engine := newTestEngine(clock)
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "ai.ask",
			Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.CooldownCondition, Cooldown: 5 * time.Second}},
		}))

		first := engine.Evaluate(context.Background(), studentSubject(), "ai.ask", scoped())
		require.True(t, first.Allowed())

		clock.Advance(6 * time.Second)
		second := engine.Evaluate(context.Background(), studentSubject(), "ai.ask", scoped())
		assert.True(t, second.Allowed())
	})

	t.Run("Allow_NoPriorInvocation", func(t *testing.T) {
		clock := newTestClock()
		engine := newTestEngine(clock)
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "ai.ask",
			Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.CooldownCondition, Cooldown: 5 * time.Second}},
		}))

		decision := engine.Evaluate(context.Background(), studentSubject(), "ai.ask", scoped())
		assert.True(t, decision.Allowed())
	})
}

func TestEngine_TimeWindow(t *testing.T) {
	register := func(engine Engine, start, end string) {
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "homework.submit",
			Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.TimeWindowCondition, Start: start, End: end}},
		}))
	}

	t.Run("Allow_InsideWindow", func(t *testing.T) {
		clock := newTestClock() // 10:00 local
		engine := newTestEngine(clock)
		register(engine, "06:00", "22:00")

		assert.True(t, engine.Evaluate(context.Background(), studentSubject(), "homework.submit", nil).Allowed())
	})

	t.Run("Allow_InclusiveBoundaries", func(t *testing.T) {
		clock := newTestClock()
		engine := newTestEngine(clock)
		register(engine, "10:00", "22:00")

		assert.True(t, engine.Evaluate(context.Background(), studentSubject(), "homework.submit", nil).Allowed())
	})

	t.Run("Deny_OutsideWindow", func(t *testing.T) {
		clock := newTestClock()
		engine := newTestEngine(clock)
		register(engine, "12:00", "14:00")

		decision := engine.Evaluate(context.Background(), studentSubject(), "homework.submit", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonTimeRestricted, decision.Reason)
		assert.Contains(t, decision.Message, "12:00")
	})

	t.Run("Allow_OvernightWindowWraps", func(t *testing.T) {
		clock := newTestClock()
		clock.Advance(13 * time.Hour) // 23:00 local
		engine := newTestEngine(clock)
		register(engine, "22:00", "06:00")

		assert.True(t, engine.Evaluate(context.Background(), studentSubject(), "homework.submit", nil).Allowed())
	})
}

func TestEngine_Ownership(t *testing.T) {
	newEngine := func() Engine {
		engine := newTestEngine(nil)
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "homework.delete",
			Conditions:  []guardDomain.ConditionSpec{{Kind: guardDomain.OwnershipCondition, Field: "resource_owner_id"}},
		}))
		return engine
	}

	t.Run("Allow_OwnRecord", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.delete",
			&guardDomain.EvalContext{Fields: map[string]string{"resource_owner_id": "student-1"}})
		assert.True(t, decision.Allowed())
	})

	t.Run("Deny_ForeignRecord", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.delete",
			&guardDomain.EvalContext{Fields: map[string]string{"resource_owner_id": "other"}})

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonOwnershipDenied, decision.Reason)
	})

	t.Run("Allow_MissingOwnerClaimPasses", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
		assert.True(t, decision.Allowed())
	})
}

func TestEngine_ScopeMembership(t *testing.T) {
	newEngine := func() Engine {
		engine := newTestEngine(nil)
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "class.report",
			Conditions: []guardDomain.ConditionSpec{{
				Kind:            guardDomain.ScopeMembershipCondition,
				ScopeField:      "class_id",
				MembershipField: "class_ids",
			}},
		}))
		return engine
	}

	t.Run("Allow_ManagedClass", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), teacherSubject(), "class.report",
			&guardDomain.EvalContext{Fields: map[string]string{"class_id": "c1"}})
		assert.True(t, decision.Allowed())
	})

	t.Run("Deny_ForeignClass", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), teacherSubject(), "class.report",
			&guardDomain.EvalContext{Fields: map[string]string{"class_id": "c9"}})

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonScopeDenied, decision.Reason)
	})

	t.Run("Allow_MissingScopeClaimPasses", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), teacherSubject(), "class.report", nil)
		assert.True(t, decision.Allowed())
	})
}

func TestEngine_FileConstraint(t *testing.T) {
	newEngine := func() Engine {
		engine := newTestEngine(nil)
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey: "homework.attachment.upload",
			Conditions: []guardDomain.ConditionSpec{{
				Kind:         guardDomain.FileConstraintCondition,
				MaxBytes:     1024,
				AllowedTypes: []string{"image/jpeg", "image/png"},
			}},
		}))
		return engine
	}

	t.Run("Allow_WithinBounds", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.attachment.upload",
			&guardDomain.EvalContext{FileSize: 512, FileType: "image/png"})
		assert.True(t, decision.Allowed())
	})

	t.Run("Deny_TooLarge", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.attachment.upload",
			&guardDomain.EvalContext{FileSize: 2048, FileType: "image/png"})

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonFileRestricted, decision.Reason)
	})

	t.Run("Deny_DisallowedType", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.attachment.upload",
			&guardDomain.EvalContext{FileSize: 512, FileType: "application/x-msdownload"})

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonFileRestricted, decision.Reason)
	})

	t.Run("Allow_AbsentFileFieldsPass", func(t *testing.T) {
		decision := newEngine().Evaluate(context.Background(), studentSubject(), "homework.attachment.upload", nil)
		assert.True(t, decision.Allowed())
	})
}

func TestEngine_SensitiveConfirmation(t *testing.T) {
	sensitiveRule := func() *guardDomain.PolicyRule {
		return &guardDomain.PolicyRule{
			ResourceKey:    "homework.delete",
			Conditions:     []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition, Limit: 10}},
			Sensitive:      true,
			ConfirmMessage: "Delete this homework?",
		}
	}

	t.Run("Deny_UserDeclines", func(t *testing.T) {
		gate := &spyGate{answer: false}
		engine := newTestEngine(nil, WithConfirmationGate(gate))
		require.NoError(t, engine.RegisterRule(sensitiveRule()))

		decision := engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonUserCancelled, decision.Reason)
		assert.Equal(t, 1, gate.Calls())
	})

	t.Run("Allow_UserAcceptsAndCommitsOnce", func(t *testing.T) {
		clock := newTestClock()
		gate := &spyGate{answer: true}
		engine := newTestEngine(clock, WithConfirmationGate(gate))
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey:    "homework.delete",
			Conditions:     []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition, Limit: 1}},
			Sensitive:      true,
			ConfirmMessage: "Delete this homework?",
		}))

		decision := engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
		require.True(t, decision.Allowed())
		assert.Equal(t, 1, gate.Calls())

		// Exactly one commit happened: a fresh evaluation sees the quota gone.
		engine.ClearCache("")
		second := engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
		assert.Equal(t, guardDomain.ReasonDailyLimitReached, second.Reason)
	})

	t.Run("Allow_PreconfirmedContextSkipsGate", func(t *testing.T) {
		gate := &spyGate{answer: false}
		engine := newTestEngine(nil, WithConfirmationGate(gate))
		require.NoError(t, engine.RegisterRule(sensitiveRule()))

		decision := engine.Evaluate(context.Background(), studentSubject(), "homework.delete",
			&guardDomain.EvalContext{Confirmed: true})

		assert.True(t, decision.Allowed())
		assert.Equal(t, 0, gate.Calls())
	})

	t.Run("Deny_DeclineNeverConsumesQuota", func(t *testing.T) {
		gate := &spyGate{answer: false}
		engine := newTestEngine(nil, WithConfirmationGate(gate))
		require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
			ResourceKey:    "homework.delete",
			Conditions:     []guardDomain.ConditionSpec{{Kind: guardDomain.DailyQuotaCondition, Limit: 1}},
			Sensitive:      true,
			ConfirmMessage: "Delete this homework?",
		}))

		denied := engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
		require.Equal(t, guardDomain.ReasonUserCancelled, denied.Reason)

		// The decline left the quota untouched.
		allowed := engine.Evaluate(context.Background(), studentSubject(), "homework.delete",
			&guardDomain.EvalContext{Confirmed: true})
		assert.True(t, allowed.Allowed())
	})

	t.Run("Deny_CancelledContextResolvesAsUserCancelled", func(t *testing.T) {
		gate := &spyGate{answer: true, release: make(chan struct{})}
		engine := newTestEngine(nil, WithConfirmationGate(gate))
		require.NoError(t, engine.RegisterRule(sensitiveRule()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan *guardDomain.Decision, 1)
		go func() {
			done <- engine.Evaluate(ctx, studentSubject(), "homework.delete", nil)
		}()

		cancel()
		decision := <-done

		assert.False(t, decision.Allowed())
		assert.Equal(t, guardDomain.ReasonUserCancelled, decision.Reason)
	})
}

func TestEngine_ConcurrentConfirmationDeduplicated(t *testing.T) {
	// Two rapid evaluations of the same sensitive resource must surface the
	// prompt exactly once; the second caller shares the first outcome.
	gate := &spyGate{answer: true, release: make(chan struct{})}
	engine := newTestEngine(nil, WithConfirmationGate(gate))
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey:    "homework.delete",
		Sensitive:      true,
		ConfirmMessage: "Delete this homework?",
	}))

	results := make(chan *guardDomain.Decision, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
		}()
	}

	// Give both evaluations time to reach the gate, then answer the prompt.
	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	first := <-results
	second := <-results

	assert.True(t, first.Allowed())
	assert.True(t, second.Allowed())
	assert.Equal(t, 1, gate.Calls(), "the gate must be prompted exactly once")
}

func TestEngine_ConfirmationSharingDisabled(t *testing.T) {
	gate := &spyGate{answer: true, release: make(chan struct{})}
	engine := newTestEngine(nil, WithConfirmationGate(gate), WithConfirmationSharing(false))
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey:    "homework.delete",
		Sensitive:      true,
		ConfirmMessage: "Delete this homework?",
	}))

	firstDone := make(chan *guardDomain.Decision, 1)
	go func() {
		firstDone <- engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
	}()
	time.Sleep(50 * time.Millisecond)

	// While the first prompt is pending, the second caller is rejected.
	second := engine.Evaluate(context.Background(), studentSubject(), "homework.delete", nil)
	assert.Equal(t, guardDomain.ReasonEvaluationInProgress, second.Reason)

	close(gate.release)
	first := <-firstDone
	assert.True(t, first.Allowed())
}

func TestEngine_AuditCapacityProperty(t *testing.T) {
	const capacity = 10
	engine := newTestEngine(nil, WithAuditCapacity(capacity))

	// Unconfigured resources with distinct keys so nothing is served from
	// cache: every evaluation appends an audit record.
	for i := 0; i < capacity+5; i++ {
		engine.Evaluate(context.Background(), studentSubject(), fmt.Sprintf("feature.audit_%d", i), nil)
	}

	recent := engine.RecentAudit(capacity)

	require.Len(t, recent, capacity)
	assert.Equal(t, fmt.Sprintf("feature.audit_%d", capacity+4), recent[0].ResourceKey)
	assert.Equal(t, "feature.audit_5", recent[capacity-1].ResourceKey, "the oldest five must be evicted")
}

func TestEngine_ConditionOrderFirstFailureWins(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(clock)
	require.NoError(t, engine.RegisterRule(&guardDomain.PolicyRule{
		ResourceKey: "homework.submit",
		Conditions: []guardDomain.ConditionSpec{
			{Kind: guardDomain.TimeWindowCondition, Start: "12:00", End: "14:00"}, // fails at 10:00
			{Kind: guardDomain.OwnershipCondition, Field: "resource_owner_id"},    // would also fail
		},
	}))

	decision := engine.Evaluate(context.Background(), studentSubject(), "homework.submit",
		&guardDomain.EvalContext{Fields: map[string]string{"resource_owner_id": "other"}})

	assert.Equal(t, guardDomain.ReasonTimeRestricted, decision.Reason,
		"the first declared condition must win")
}
