package kratos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/google/uuid"
	kratosclient "github.com/ory/kratos-client-go"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Config controls the Kratos adapter.
type Config struct {
	PublicURL string        `yaml:"public_url"`
	Timeout   time.Duration `yaml:"timeout"`

	// RequestsPerSecond and Burst shape the outbound token bucket.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// TokenizeTemplate, when set, makes IDToken return the session as a JWT
	// minted from this Kratos tokenizer template. Otherwise the opaque
	// session token is returned.
	TokenizeTemplate string `yaml:"tokenize_template"`

	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the adapter defaults. PublicURL must still be set.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		PollInterval:      time.Minute,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: PublicURL must be an absolute URL", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: Timeout must be > 0", ErrInvalidConfig)
	}
	if c.RequestsPerSecond <= 0 || c.Burst <= 0 {
		return fmt.Errorf("%w: RequestsPerSecond and Burst must be > 0", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: PollInterval must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Service is an [authflow.IdentityService] backed by Kratos native flows.
type Service struct {
	cfg     Config
	api     *kratosclient.APIClient
	limiter *rate.Limiter
	tokens  singleflight.Group
	logger  *slog.Logger

	mu        sync.Mutex
	token     string
	principal *authflow.Principal
	listeners map[string]func(*authflow.Principal)

	// notifyMu keeps state changes and their notifications in one order.
	notifyMu sync.Mutex
}

var _ authflow.IdentityService = (*Service)(nil)

// New returns a Service. A nil logger discards logs.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conf := kratosclient.NewConfiguration()
	conf.Servers = []kratosclient.ServerConfiguration{
		{URL: strings.TrimRight(cfg.PublicURL, "/")},
	}
	conf.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	if conf.DefaultHeader == nil {
		conf.DefaultHeader = make(map[string]string)
	}
	conf.DefaultHeader["Accept"] = "application/json"

	logger.Info("kratos identity service initialized", "public_url", cfg.PublicURL)

	return &Service{
		cfg:       cfg,
		api:       kratosclient.NewAPIClient(conf),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:    logger,
		listeners: make(map[string]func(*authflow.Principal)),
	}, nil
}

// Subscribe registers fn for auth-state changes. Notifications are delivered
// sequentially on the goroutine that caused the change.
func (s *Service) Subscribe(fn func(*authflow.Principal)) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Current returns the signed-in principal, or nil.
func (s *Service) Current() *authflow.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// SessionToken returns the opaque Kratos session token, or "".
func (s *Service) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SignIn runs a native password login flow.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (*authflow.Principal, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	flow, resp, err := s.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, classify(resp, err)
	}

	body := kratosclient.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&kratosclient.UpdateLoginFlowWithPasswordMethod{
		Identifier: identifier,
		Password:   password,
		Method:     "password",
	})
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	login, resp, err := s.api.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		return nil, classify(resp, err)
	}

	token := login.GetSessionToken()
	if token == "" {
		return nil, fmt.Errorf("%w: login returned no session token", ErrFlowRejected)
	}
	sess := login.GetSession()
	p := principalFromSession(&sess)
	s.setSession(token, p)

	s.logger.InfoContext(ctx, "kratos sign-in", "uid", p.UID)
	return p, nil
}

// Restore adopts a previously issued session token after checking it with
// whoami.
func (s *Service) Restore(ctx context.Context, token string) (*authflow.Principal, error) {
	if token == "" {
		return nil, ErrNotSignedIn
	}
	sess, err := s.whoami(ctx, token, false)
	if err != nil {
		return nil, err
	}
	p := principalFromSession(sess)
	s.setSession(token, p)
	return p, nil
}

// SignOut revokes the session and notifies subscribers. A session the
// server already rejects is cleared locally without error.
func (s *Service) SignOut(ctx context.Context) error {
	token := s.SessionToken()
	if token == "" {
		return nil
	}

	if err := s.wait(ctx); err != nil {
		return err
	}
	resp, err := s.api.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratosclient.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil {
		cerr := classify(resp, err)
		if !errors.Is(cerr, ErrUnauthorized) {
			return cerr
		}
		s.logger.DebugContext(ctx, "kratos session already revoked")
	}

	s.setSession("", nil)
	return nil
}

// IDToken resolves the current session. Concurrent calls for the same
// session share one whoami request.
func (s *Service) IDToken(ctx context.Context, p *authflow.Principal) (string, error) {
	token := s.SessionToken()
	if token == "" {
		return "", ErrNotSignedIn
	}
	tokenize := s.cfg.TokenizeTemplate != ""

	// The shared lookup outlives any single caller; each caller still
	// returns as soon as its own ctx ends.
	ch := s.tokens.DoChan(token, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()
		return s.whoami(fetchCtx, token, tokenize)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return "", res.Err
	}
	sess := res.Val.(*kratosclient.Session)

	if p != nil && p.UID != "" {
		if id := sess.GetIdentity(); id.GetId() != p.UID {
			return "", ErrUIDMismatch
		}
	}
	if !tokenize {
		return token, nil
	}
	jwt := sess.GetTokenized()
	if jwt == "" {
		return "", fmt.Errorf("%w: whoami returned no tokenized session", ErrFlowRejected)
	}
	return jwt, nil
}

// SendPasswordResetEmail starts a recovery flow that mails a code to email.
func (s *Service) SendPasswordResetEmail(ctx context.Context, email string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	flow, resp, err := s.api.FrontendAPI.CreateNativeRecoveryFlow(ctx).Execute()
	if err != nil {
		return classify(resp, err)
	}

	method := kratosclient.NewUpdateRecoveryFlowWithCodeMethod("code")
	method.SetEmail(email)
	if err := s.wait(ctx); err != nil {
		return err
	}
	updated, resp, err := s.api.FrontendAPI.UpdateRecoveryFlow(ctx).
		Flow(flow.GetId()).
		UpdateRecoveryFlowBody(kratosclient.UpdateRecoveryFlowWithCodeMethodAsUpdateRecoveryFlowBody(method)).
		Execute()
	if err != nil {
		return classify(resp, err)
	}

	if msgs := errorMessages(updated.Ui.Messages); len(msgs) > 0 {
		return &FlowError{FlowID: updated.GetId(), Status: http.StatusOK, Messages: msgs}
	}
	s.logger.InfoContext(ctx, "kratos recovery code requested", "flow_id", updated.GetId())
	return nil
}

// SendPhoneVerificationCode starts a code login flow for phone. Kratos
// answers a successful send with 400 and the flow awaiting the code; that
// flow's id is returned as the verification id.
func (s *Service) SendPhoneVerificationCode(ctx context.Context, phone, challengeToken string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	flow, resp, err := s.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return "", classify(resp, err)
	}

	method := &kratosclient.UpdateLoginFlowWithCodeMethod{Method: "code"}
	method.SetIdentifier(phone)
	if challengeToken != "" {
		method.SetTransientPayload(map[string]interface{}{"captcha_token": challengeToken})
	}

	if err := s.wait(ctx); err != nil {
		return "", err
	}
	_, resp, err = s.api.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(kratosclient.UpdateLoginFlowWithCodeMethodAsUpdateLoginFlowBody(method)).
		Execute()
	if err == nil {
		return flow.GetId(), nil
	}

	var apiErr *kratosclient.GenericOpenAPIError
	if resp != nil && resp.StatusCode == http.StatusBadRequest && errors.As(err, &apiErr) {
		id, msgs, perr := parseFlow(apiErr.Body())
		if perr == nil && len(msgs) == 0 {
			if id == "" {
				id = flow.GetId()
			}
			s.logger.InfoContext(ctx, "kratos login code sent", "flow_id", id)
			return id, nil
		}
	}
	return "", classify(resp, err)
}

// Watch polls whoami every PollInterval and signs out locally once the
// server rejects the session. It returns when ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	token := s.SessionToken()
	if token == "" {
		return
	}
	_, err := s.whoami(ctx, token, false)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized):
		s.logger.InfoContext(ctx, "kratos session revoked")
		s.clearIf(token)
	default:
		s.logger.WarnContext(ctx, "kratos whoami failed", "error", err)
	}
}

func (s *Service) whoami(ctx context.Context, token string, tokenize bool) (*kratosclient.Session, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	req := s.api.FrontendAPI.ToSession(ctx).XSessionToken(token)
	if tokenize {
		req = req.TokenizeAs(s.cfg.TokenizeTemplate)
	}
	sess, resp, err := req.Execute()
	if err != nil {
		return nil, classify(resp, err)
	}
	if sess.Active != nil && !*sess.Active {
		return nil, fmt.Errorf("%w: session inactive", ErrUnauthorized)
	}
	return sess, nil
}

func (s *Service) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Service) setSession(token string, p *authflow.Principal) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.token = token
	s.principal = p
	s.mu.Unlock()
	s.notify(p)
}

// clearIf signs out locally only while token is still the active session.
func (s *Service) clearIf(token string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.principal = nil
	s.mu.Unlock()
	s.notify(nil)
}

// notify runs with notifyMu held.
func (s *Service) notify(p *authflow.Principal) {
	s.mu.Lock()
	fns := make([]func(*authflow.Principal), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if p == nil {
			fn(nil)
			continue
		}
		cp := *p
		fn(&cp)
	}
}

func principalFromSession(sess *kratosclient.Session) *authflow.Principal {
	p := &authflow.Principal{SessionID: sess.GetId()}
	id, ok := sess.GetIdentityOk()
	if !ok || id == nil {
		return p
	}
	p.UID = id.GetId()
	if traits, ok := id.Traits.(map[string]interface{}); ok {
		if v, ok := traits["email"].(string); ok {
			p.Email = v
		}
		if v, ok := traits["phone"].(string); ok {
			p.PhoneNumber = v
		}
	}
	return p
}

func errorMessages(list []kratosclient.UiText) []string {
	var out []string
	for _, m := range list {
		if m.Type == "error" && m.Text != "" {
			out = append(out, m.Text)
		}
	}
	return out
}
