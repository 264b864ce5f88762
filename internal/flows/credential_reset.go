package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	ResetMethodEmail = "email"
	ResetMethodPhone = "phone"
)

// ResetResult carries what the form needs after a submission.
//
// ServiceMessage is the provider's human-readable failure text, set when the
// outbound request failed. VerificationID is set for a successful phone
// submission.
type ResetResult struct {
	Method         string
	Dispatched     bool
	Navigated      bool
	VerificationID string
	ServiceMessage string
}

type ResetMetrics struct {
	EmailSent         int
	EmailFailure      int
	OTPSent           int
	OTPFailure        int
	ChallengeFailure  int
	RateLimited       int
	NavigationFailure int
}

type ResetEvents struct {
	EmailRequest string
	PhoneRequest string
	RateLimited  string
	Navigation   string
}

type ResetErrors struct {
	ClientNotReady error
	Dispatch       error
	RateLimited    error
	Unavailable    error
	Navigation     error
}

type ResetDeps struct {
	RequestTimeout  time.Duration
	ChallengeAnchor string
	PhonePrefix     string
	LoginScreen     string
	VerifyScreen    string
	VerificationKey string

	CheckLimiter    func(ctx context.Context, method, target string) error
	MapLimiterError func(error) error

	SendPasswordResetEmail    func(ctx context.Context, email string) error
	ChallengeToken            func(ctx context.Context, anchor string) (string, error)
	SendPhoneVerificationCode func(ctx context.Context, phone, challengeToken string) (string, error)
	Navigate                  func(ctx context.Context, screen string, params map[string]string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics ResetMetrics
	Events  ResetEvents
	Errors  ResetErrors
}

// RunResetEmail throttles, dispatches one reset email and navigates to the
// login screen on success. It never retries.
func RunResetEmail(ctx context.Context, email string, deps ResetDeps) (ResetResult, error) {
	normalizeResetDeps(&deps)
	res := ResetResult{Method: ResetMethodEmail}
	if deps.SendPasswordResetEmail == nil || deps.Navigate == nil {
		return res, deps.Errors.ClientNotReady
	}

	if err := checkResetLimiter(ctx, ResetMethodEmail, email, deps); err != nil {
		return res, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, deps.RequestTimeout)
	err := deps.SendPasswordResetEmail(reqCtx, email)
	cancel()
	res.Dispatched = true
	if err != nil {
		res.ServiceMessage = err.Error()
		wrapped := fmt.Errorf("%w: %v", deps.Errors.Dispatch, err)
		deps.MetricInc(deps.Metrics.EmailFailure)
		deps.EmitAudit(ctx, deps.Events.EmailRequest, false, "", "", ResetMethodEmail, wrapped, nil)
		return res, wrapped
	}
	deps.MetricInc(deps.Metrics.EmailSent)
	deps.EmitAudit(ctx, deps.Events.EmailRequest, true, "", "", ResetMethodEmail, nil, nil)

	if err := navigate(ctx, deps.LoginScreen, nil, deps); err != nil {
		return res, err
	}
	res.Navigated = true
	return res, nil
}

// RunResetPhone throttles, resolves a human-verification challenge, requests
// one OTP and navigates to the verify screen carrying the verification id
// returned by this request.
func RunResetPhone(ctx context.Context, phone string, deps ResetDeps) (ResetResult, error) {
	normalizeResetDeps(&deps)
	res := ResetResult{Method: ResetMethodPhone}
	if deps.SendPhoneVerificationCode == nil || deps.ChallengeToken == nil || deps.Navigate == nil {
		return res, deps.Errors.ClientNotReady
	}

	if err := checkResetLimiter(ctx, ResetMethodPhone, phone, deps); err != nil {
		return res, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, deps.RequestTimeout)
	defer cancel()

	challengeToken, err := deps.ChallengeToken(reqCtx, deps.ChallengeAnchor)
	if err != nil {
		res.ServiceMessage = err.Error()
		wrapped := fmt.Errorf("%w: %v", deps.Errors.Dispatch, err)
		deps.MetricInc(deps.Metrics.ChallengeFailure)
		deps.EmitAudit(ctx, deps.Events.PhoneRequest, false, "", "", ResetMethodPhone, wrapped, func() map[string]string {
			return map[string]string{"stage": "challenge"}
		})
		return res, wrapped
	}

	verificationID, err := deps.SendPhoneVerificationCode(reqCtx, deps.PhonePrefix+phone, challengeToken)
	res.Dispatched = true
	if err == nil && verificationID == "" {
		err = errors.New("identity service returned an empty verification id")
	}
	if err != nil {
		res.ServiceMessage = err.Error()
		wrapped := fmt.Errorf("%w: %v", deps.Errors.Dispatch, err)
		deps.MetricInc(deps.Metrics.OTPFailure)
		deps.EmitAudit(ctx, deps.Events.PhoneRequest, false, "", "", ResetMethodPhone, wrapped, func() map[string]string {
			return map[string]string{"stage": "send_code"}
		})
		return res, wrapped
	}
	res.VerificationID = verificationID
	deps.MetricInc(deps.Metrics.OTPSent)
	deps.EmitAudit(ctx, deps.Events.PhoneRequest, true, "", "", ResetMethodPhone, nil, nil)

	params := map[string]string{deps.VerificationKey: verificationID}
	if err := navigate(ctx, deps.VerifyScreen, params, deps); err != nil {
		return res, err
	}
	res.Navigated = true
	return res, nil
}

// RunNavigateLogin is the "go back" action of the reset screen.
func RunNavigateLogin(ctx context.Context, deps ResetDeps) error {
	normalizeResetDeps(&deps)
	if deps.Navigate == nil {
		return deps.Errors.ClientNotReady
	}
	return navigate(ctx, deps.LoginScreen, nil, deps)
}

func checkResetLimiter(ctx context.Context, method, target string, deps ResetDeps) error {
	if deps.CheckLimiter == nil {
		return nil
	}
	err := deps.CheckLimiter(ctx, method, target)
	if err == nil {
		return nil
	}
	mapped := deps.MapLimiterError(err)
	if errors.Is(mapped, deps.Errors.RateLimited) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", method, mapped, nil)
	}
	return mapped
}

func navigate(ctx context.Context, screen string, params map[string]string, deps ResetDeps) error {
	if err := deps.Navigate(ctx, screen, params); err != nil {
		wrapped := fmt.Errorf("%w: %v", deps.Errors.Navigation, err)
		deps.MetricInc(deps.Metrics.NavigationFailure)
		deps.EmitAudit(ctx, deps.Events.Navigation, false, "", "", "", wrapped, func() map[string]string {
			return map[string]string{"screen": screen}
		})
		return wrapped
	}
	return nil
}

func normalizeResetDeps(deps *ResetDeps) {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 10 * time.Second
	}
	if deps.ChallengeAnchor == "" {
		deps.ChallengeAnchor = "recaptcha-container"
	}
	if deps.LoginScreen == "" {
		deps.LoginScreen = "Login"
	}
	if deps.VerifyScreen == "" {
		deps.VerifyScreen = "VerifyOTP"
	}
	if deps.VerificationKey == "" {
		deps.VerificationKey = "verificationId"
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
