package ctadmin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/ctadmin/middleware"
	"github.com/MrEthical07/ctadmin/refresh"
	"github.com/MrEthical07/ctadmin/session"
	"github.com/MrEthical07/ctadmin/transport"
)

const (
	auditEventBootstrap           = "session_bootstrap"
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLogout              = "logout"
	auditEventSessionRenewed      = "session_renewed"
	auditEventSessionRenewFailed  = "session_renew_failed"
	auditEventSessionExpired      = "session_expired"
	auditEventRecoveryRetried     = "recovery_retried"
	auditEventRecoveryRedirected  = "recovery_redirected"
	auditEventAccountCreated      = "account_created"
	auditEventAccountUpdated      = "account_updated"
	auditEventAccountStatusChange = "account_status_change"
	auditEventAccountDeleted      = "account_deleted"
	auditEventPasswordRevealed    = "account_password_revealed"
	auditEventPasswordRotated     = "account_password_rotated"
)

// AuditErrorCode classifies a failed audit event without exposing the
// backend's message.
type AuditErrorCode string

const (
	auditErrUnauthorized AuditErrorCode = "unauthorized"
	auditErrForbidden    AuditErrorCode = "forbidden"
	auditErrNotFound     AuditErrorCode = "not_found"
	auditErrRateLimited  AuditErrorCode = "rate_limited"
	auditErrInvalid      AuditErrorCode = "invalid_request"
	auditErrServer       AuditErrorCode = "server_error"
	auditErrTransport    AuditErrorCode = "transport_error"
	auditErrCanceled     AuditErrorCode = "canceled"
	auditErrInternal     AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return auditErrCanceled
	}
	var terr *transport.TransportError
	if errors.As(err, &terr) {
		return auditErrTransport
	}
	switch status := transport.StatusCode(err); {
	case status == http.StatusUnauthorized:
		return auditErrUnauthorized
	case status == http.StatusForbidden:
		return auditErrForbidden
	case status == http.StatusNotFound:
		return auditErrNotFound
	case status == http.StatusTooManyRequests:
		return auditErrRateLimited
	case status >= 500:
		return auditErrServer
	case status >= 400:
		return auditErrInvalid
	}
	return auditErrInternal
}

func (c *Client) emitAudit(ctx context.Context, eventType, username string, success bool, err error, metadata map[string]string) {
	c.emitAuditCode(ctx, eventType, username, success, auditErrorCode(err), metadata)
}

func (c *Client) emitAuditCode(ctx context.Context, eventType, username string, success bool, code AuditErrorCode, metadata map[string]string) {
	if c == nil || c.audit == nil {
		return
	}
	c.audit.Emit(ctx, AuditEvent{
		EventType: eventType,
		Username:  username,
		Mode:      c.config.Mode.String(),
		Success:   success,
		Error:     string(code),
		Metadata:  metadata,
	})
}

func (c *Client) currentUsername() string {
	if c.controller == nil {
		return ""
	}
	return c.controller.State().Username()
}

func (c *Client) observeRoundTrip(o transport.Observation) {
	c.metrics.Inc(MetricRequest)
	c.metrics.Observe(MetricRequestLatency, o.Duration)

	var terr *transport.TransportError
	switch {
	case errors.As(o.Err, &terr):
		c.metrics.Inc(MetricTransportError)
	case o.Status >= 400:
		c.metrics.Inc(MetricRequestFailure)
	}
	if o.Status == http.StatusUnauthorized {
		c.metrics.Inc(MetricUnauthorized)
	}
	c.logger.Debug("ctadmin: round trip",
		"method", o.Method,
		"path", o.Path,
		"status", o.Status,
		"attempt", o.Attempt,
		"duration", o.Duration,
	)
}

func (c *Client) observeRenewal(r refresh.Result) {
	c.metrics.Observe(MetricRenewalLatency, r.Duration)
	if r.Err != nil {
		c.metrics.Inc(MetricRenewalFailure)
		return
	}
	c.metrics.Inc(MetricRenewalSuccess)
}

func (c *Client) observeRecovery(o middleware.Outcome) {
	ctx := context.Background()
	switch o {
	case middleware.OutcomeRetried:
		c.metrics.Inc(MetricRecoveryRetried)
		c.emitAudit(ctx, auditEventRecoveryRetried, c.currentUsername(), true, nil, nil)
	case middleware.OutcomeRenewFailed:
		c.metrics.Inc(MetricRecoveryRenewFailed)
	case middleware.OutcomeRedirected:
		c.metrics.Inc(MetricRecoveryRedirected)
		c.emitAuditCode(ctx, auditEventRecoveryRedirected, "", false, auditErrUnauthorized, nil)
	}
}

func (c *Client) observeSession(ev session.Event) {
	ctx := context.Background()
	switch ev.Kind {
	case session.EventBootstrap:
		if ev.Authenticated {
			c.metrics.Inc(MetricBootstrapAuthenticated)
		} else {
			c.metrics.Inc(MetricBootstrapAnonymous)
		}
		c.emitAudit(ctx, auditEventBootstrap, ev.Username, ev.Authenticated, ev.Err, map[string]string{
			"authenticated": strconv.FormatBool(ev.Authenticated),
		})
	case session.EventLogin:
		c.metrics.Inc(MetricLoginSuccess)
		c.emitAudit(ctx, auditEventLoginSuccess, ev.Username, true, nil, nil)
	case session.EventLoginFailed:
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, ev.Username, false, ev.Err, nil)
	case session.EventLogout:
		c.metrics.Inc(MetricLogout)
		c.emitAudit(ctx, auditEventLogout, ev.Username, true, ev.Err, nil)
	case session.EventRenewed:
		c.emitAudit(ctx, auditEventSessionRenewed, ev.Username, true, nil, nil)
	case session.EventRenewFailed:
		c.emitAudit(ctx, auditEventSessionRenewFailed, ev.Username, false, ev.Err, nil)
	case session.EventExpired:
		c.metrics.Inc(MetricSessionExpired)
		c.emitAuditCode(ctx, auditEventSessionExpired, ev.Username, false, auditErrUnauthorized, nil)
	}
}
