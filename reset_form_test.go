package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func staticChallenges(token string) ChallengeFactory {
	return func(string) (Challenge, error) {
		return StaticChallenge(token), nil
	}
}

func TestResetFormStartsInEmailMode(t *testing.T) {
	client, _ := buildTestClient(t, newMockIdentityService(), testClientOptions{})
	f := client.NewResetForm()
	if f.Method() != ResetMethodEmail {
		t.Fatalf("expected email mode, got %q", f.Method())
	}
	if f.ActiveError() != "" || f.ServiceError() != "" {
		t.Fatal("fresh form must have no visible errors")
	}
}

func TestResetInvalidEmailBlocksDispatch(t *testing.T) {
	svc := newMockIdentityService()
	client, nav := buildTestClient(t, svc, testClientOptions{})
	f := client.NewResetForm()

	f.Change(FieldEmail, "not-an-email")
	_, err := f.Submit(context.Background())
	if !errors.Is(err, ErrResetValidation) {
		t.Fatalf("expected ErrResetValidation, got %v", err)
	}
	if svc.outboundCount() != 0 {
		t.Fatal("invalid input must not reach the identity service")
	}
	if len(nav.History()) != 0 {
		t.Fatal("invalid input must not navigate")
	}
	if got := f.FieldError(FieldEmail); got != "Invalid email" {
		t.Fatalf("FieldError = %q", got)
	}
	if client.MetricsSnapshot().Counters[MetricResetValidationFailure] != 1 {
		t.Fatal("validation failure must be counted")
	}
}

func TestResetEmptyEmailIsRequired(t *testing.T) {
	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{})
	f := client.NewResetForm()

	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrResetValidation) {
		t.Fatalf("expected ErrResetValidation, got %v", err)
	}
	if got := f.ActiveError(); got != "Email is required" {
		t.Fatalf("ActiveError = %q", got)
	}
}

func TestResetErrorHiddenUntilTouched(t *testing.T) {
	client, _ := buildTestClient(t, newMockIdentityService(), testClientOptions{})
	f := client.NewResetForm()

	f.Change(FieldEmail, "bad")
	if f.FieldError(FieldEmail) != "" {
		t.Fatal("error must stay hidden until the field is touched")
	}
	f.Blur(FieldEmail)
	if f.FieldError(FieldEmail) != "Invalid email" {
		t.Fatalf("FieldError after blur = %q", f.FieldError(FieldEmail))
	}
	f.Change(FieldEmail, "alice@example.com")
	if f.FieldError(FieldEmail) != "" {
		t.Fatalf("error must clear once valid, got %q", f.FieldError(FieldEmail))
	}
}

func TestResetShortPhoneBlocksDispatch(t *testing.T) {
	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{challenges: staticChallenges("captcha")})
	f := client.NewResetForm()
	f.ToggleMethod()

	f.Change(FieldPhoneNumber, "12345")
	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrResetValidation) {
		t.Fatalf("expected ErrResetValidation, got %v", err)
	}
	if got := f.FieldError(FieldPhoneNumber); got != "Phone number must be 10 digits" {
		t.Fatalf("FieldError = %q", got)
	}
	if svc.outboundCount() != 0 {
		t.Fatal("invalid phone must not reach the identity service")
	}
}

func TestResetPhoneDispatchesOnceAndNavigates(t *testing.T) {
	svc := newMockIdentityService()
	client, nav := buildTestClient(t, svc, testClientOptions{challenges: staticChallenges("captcha-ok")})
	f := client.NewResetForm()
	f.ToggleMethod()
	f.Change(FieldPhoneNumber, "5551234567")

	out, err := f.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(svc.phoneCalls) != 1 {
		t.Fatalf("expected one OTP request, got %d", len(svc.phoneCalls))
	}
	call := svc.phoneCalls[0]
	if call.phone != "5551234567" || call.token != "captcha-ok" {
		t.Fatalf("unexpected call %+v", call)
	}

	history := nav.History()
	if len(history) != 1 {
		t.Fatalf("expected one navigation, got %d", len(history))
	}
	if history[0].Screen != ScreenVerifyOTP || history[0].Params[ParamVerificationID] != "vid-1" {
		t.Fatalf("unexpected navigation %+v", history[0])
	}
	if out.Screen != ScreenVerifyOTP || out.VerificationID != "vid-1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if client.MetricsSnapshot().Counters[MetricOTPSent] != 1 {
		t.Fatal("sent OTP must be counted")
	}
}

func TestResetPhonePrefixAndFreshVerificationID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reset.PhonePrefix = "+1"
	svc := newMockIdentityService()
	client, nav := buildTestClient(t, svc, testClientOptions{cfg: &cfg, challenges: staticChallenges("c")})

	for i, want := range []string{"vid-1", "vid-2"} {
		f := client.NewResetForm()
		f.ToggleMethod()
		f.Change(FieldPhoneNumber, "5551234567")
		if _, err := f.Submit(context.Background()); err != nil {
			t.Fatalf("submit #%d: %v", i+1, err)
		}
		entry, _ := nav.Current()
		if entry.Params[ParamVerificationID] != want {
			t.Fatalf("submit #%d navigated with %q, want %q", i+1, entry.Params[ParamVerificationID], want)
		}
	}
	for _, call := range svc.phoneCalls {
		if call.phone != "+15551234567" {
			t.Fatalf("expected prefixed number, got %q", call.phone)
		}
	}
}

func TestResetEmailDispatchesOnceAndNavigatesToLogin(t *testing.T) {
	svc := newMockIdentityService()
	client, nav := buildTestClient(t, svc, testClientOptions{})
	f := client.NewResetForm()
	f.Change(FieldEmail, "alice@example.com")

	out, err := f.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(svc.resetEmails) != 1 || svc.resetEmails[0] != "alice@example.com" {
		t.Fatalf("unexpected reset emails %v", svc.resetEmails)
	}
	history := nav.History()
	if len(history) != 1 || history[0].Screen != ScreenLogin {
		t.Fatalf("unexpected navigation %+v", history)
	}
	if out.Screen != ScreenLogin || out.Method != ResetMethodEmail {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.Value(FieldEmail) != "" {
		t.Fatal("form must be discarded after success")
	}
}

func TestResetToggleTwiceLeavesNoResidualError(t *testing.T) {
	client, _ := buildTestClient(t, newMockIdentityService(), testClientOptions{})
	f := client.NewResetForm()

	f.Change(FieldEmail, "not-an-email")
	_, _ = f.Submit(context.Background())
	if f.ActiveError() == "" {
		t.Fatal("expected a visible error before toggling")
	}

	if got := f.ToggleMethod(); got != ResetMethodPhone {
		t.Fatalf("first toggle = %q", got)
	}
	if f.ActiveError() != "" {
		t.Fatalf("phone mode inherited error %q", f.ActiveError())
	}
	if got := f.ToggleMethod(); got != ResetMethodEmail {
		t.Fatalf("second toggle = %q", got)
	}
	if f.ActiveError() != "" || f.ServiceError() != "" {
		t.Fatal("toggling twice must leave no residual error state")
	}
	if f.Value(FieldEmail) != "not-an-email" {
		t.Fatal("entered values survive a toggle")
	}
}

func TestResetServiceErrorIsShown(t *testing.T) {
	svc := newMockIdentityService()
	svc.resetErr = errors.New("user not found")
	client, nav := buildTestClient(t, svc, testClientOptions{})
	f := client.NewResetForm()
	f.Change(FieldEmail, "ghost@example.com")

	_, err := f.Submit(context.Background())
	if !errors.Is(err, ErrResetDispatch) {
		t.Fatalf("expected ErrResetDispatch, got %v", err)
	}
	if f.ServiceError() != "user not found" {
		t.Fatalf("ServiceError = %q", f.ServiceError())
	}
	if len(nav.History()) != 0 {
		t.Fatal("failed dispatch must not navigate")
	}
	if f.Value(FieldEmail) != "ghost@example.com" {
		t.Fatal("failed submission keeps the form")
	}

	svc.mu.Lock()
	svc.resetErr = nil
	svc.mu.Unlock()
	if _, err := f.Submit(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(svc.resetEmails) != 2 {
		t.Fatalf("expected exactly two dispatches, got %d", len(svc.resetEmails))
	}
}

func TestResetPhoneServiceErrorDoesNotNavigate(t *testing.T) {
	svc := newMockIdentityService()
	svc.phoneErr = errors.New("quota exceeded")
	client, nav := buildTestClient(t, svc, testClientOptions{challenges: staticChallenges("c")})
	f := client.NewResetForm()
	f.ToggleMethod()
	f.Change(FieldPhoneNumber, "5551234567")

	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrResetDispatch) {
		t.Fatalf("expected ErrResetDispatch, got %v", err)
	}
	if f.ServiceError() != "quota exceeded" {
		t.Fatalf("ServiceError = %q", f.ServiceError())
	}
	if len(nav.History()) != 0 {
		t.Fatal("failed OTP request must not navigate")
	}
}

func TestResetChallengeFailureSkipsDispatch(t *testing.T) {
	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{
		challenges: func(string) (Challenge, error) {
			return ChallengeFunc(func(context.Context) (string, error) {
				return "", errors.New("captcha expired")
			}), nil
		},
	})
	f := client.NewResetForm()
	f.ToggleMethod()
	f.Change(FieldPhoneNumber, "5551234567")

	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrResetDispatch) {
		t.Fatalf("expected ErrResetDispatch, got %v", err)
	}
	if svc.outboundCount() != 0 {
		t.Fatal("no OTP request without a solved challenge")
	}
	if client.MetricsSnapshot().Counters[MetricChallengeFailure] != 1 {
		t.Fatal("challenge failure must be counted")
	}
}

func TestResetPhoneWithoutChallengeFactory(t *testing.T) {
	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{})
	f := client.NewResetForm()
	f.ToggleMethod()
	f.Change(FieldPhoneNumber, "5551234567")

	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if svc.outboundCount() != 0 {
		t.Fatal("no request expected")
	}
	if got := f.ServiceError(); got != "" {
		t.Fatalf("wiring errors must not reach the error region, got %q", got)
	}
}

func TestResetToggleDuringSubmitNeverDispatchesInvalidInput(t *testing.T) {
	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{challenges: staticChallenges("captcha-ok")})

	for i := 0; i < 2000; i++ {
		f := client.NewResetForm()
		f.Change(FieldEmail, "not-an-email")
		f.Change(FieldPhoneNumber, "123")

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ToggleMethod()
		}()
		if _, err := f.Submit(context.Background()); !errors.Is(err, ErrResetValidation) {
			wg.Wait()
			t.Fatalf("iteration %d: expected ErrResetValidation, got %v", i, err)
		}
		wg.Wait()
	}
	if svc.outboundCount() != 0 {
		t.Fatalf("invalid input dispatched %d times", svc.outboundCount())
	}
}

func TestResetTargetThrottle(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Reset.EnableTargetThrottle = true
	cfg.Reset.MaxRequests = 1
	cfg.Reset.Cooldown = time.Minute

	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{redis: rdb, cfg: &cfg})

	first := client.NewResetForm()
	first.Change(FieldEmail, "alice@example.com")
	if _, err := first.Submit(context.Background()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := client.NewResetForm()
	second.Change(FieldEmail, "Alice@Example.com")
	if _, err := second.Submit(context.Background()); !errors.Is(err, ErrResetRateLimited) {
		t.Fatalf("expected ErrResetRateLimited, got %v", err)
	}
	if len(svc.resetEmails) != 1 {
		t.Fatalf("throttled submission must not dispatch, got %d", len(svc.resetEmails))
	}
	if client.MetricsSnapshot().Counters[MetricResetRateLimited] != 1 {
		t.Fatal("throttled submission must be counted")
	}
}

func TestResetThrottleRequiresRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reset.EnableTargetThrottle = true
	_, err := New().
		WithConfig(cfg).
		WithIdentityService(newMockIdentityService()).
		WithNavigator(NavigatorFunc(func(context.Context, string, map[string]string) error { return nil })).
		Build()
	if err == nil {
		t.Fatal("expected error without redis")
	}
}

func TestResetNavigationFailureKeepsServiceErrorEmpty(t *testing.T) {
	svc := newMockIdentityService()
	navErr := errors.New("screen unmounted")
	client, err := New().
		WithIdentityService(svc).
		WithNavigator(NavigatorFunc(func(context.Context, string, map[string]string) error { return navErr })).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)

	f := client.NewResetForm()
	f.Change(FieldEmail, "alice@example.com")
	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrNavigation) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
	if f.ServiceError() != "" {
		t.Fatalf("navigation failure is not a service error, got %q", f.ServiceError())
	}
	if len(svc.resetEmails) != 1 {
		t.Fatal("email was dispatched once")
	}
}

func TestResetBackToLogin(t *testing.T) {
	client, nav := buildTestClient(t, newMockIdentityService(), testClientOptions{})
	f := client.NewResetForm()
	f.Change(FieldEmail, "draft@example.com")

	if err := f.BackToLogin(context.Background()); err != nil {
		t.Fatalf("BackToLogin failed: %v", err)
	}
	entry, ok := nav.Current()
	if !ok || entry.Screen != ScreenLogin {
		t.Fatalf("expected Login, got %+v", entry)
	}
	if f.Value(FieldEmail) != "" {
		t.Fatal("BackToLogin discards the form")
	}
}

func TestResetAuditEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(16)

	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{cfg: &cfg, sink: sink})
	f := client.NewResetForm()

	f.Change(FieldEmail, "bad")
	_, _ = f.Submit(context.Background())
	f.Change(FieldEmail, "alice@example.com")
	if _, err := f.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := []struct {
		event   string
		success bool
		code    string
	}{
		{auditEventResetValidation, false, string(auditErrValidation)},
		{auditEventResetEmailRequest, true, ""},
	}
	for _, w := range want {
		select {
		case e := <-sink.Events():
			if e.EventType != w.event || e.Success != w.success || e.Error != w.code {
				t.Fatalf("unexpected event %+v, want %+v", e, w)
			}
			if e.Method != string(ResetMethodEmail) {
				t.Fatalf("unexpected method %q", e.Method)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", w.event)
		}
	}
}

func TestResetConcurrentSubmitIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := func(string) (Challenge, error) {
		return ChallengeFunc(func(ctx context.Context) (string, error) {
			close(entered)
			<-release
			return "captcha-ok", nil
		}), nil
	}

	svc := newMockIdentityService()
	client, _ := buildTestClient(t, svc, testClientOptions{challenges: blocking})
	f := client.NewResetForm()
	f.ToggleMethod()
	f.Change(FieldPhoneNumber, "5551234567")

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first submission never reached the challenge")
	}
	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrResetInProgress) {
		t.Fatalf("expected ErrResetInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if svc.outboundCount() != 1 {
		t.Fatalf("expected exactly one outbound request, got %d", svc.outboundCount())
	}
}
