package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authflow/form"
	"github.com/MrEthical07/authflow/internal/flows"
)

// ResetMethod selects the recovery channel.
type ResetMethod string

const (
	ResetMethodEmail ResetMethod = flows.ResetMethodEmail
	ResetMethodPhone ResetMethod = flows.ResetMethodPhone
)

// Field returns the form field validated in this mode.
func (m ResetMethod) Field() string {
	if m == ResetMethodPhone {
		return FieldPhoneNumber
	}
	return FieldEmail
}

// ResetForm is the credential reset screen state machine.
//
// It starts in email mode and changes mode only through ToggleMethod. Each
// Submit validates the active field, then issues exactly one outbound
// request and at most one navigation.
type ResetForm struct {
	client *Client

	mu         sync.Mutex
	method     ResetMethod
	state      *form.State
	serviceErr string

	submitting atomic.Bool
}

// ResetOutcome describes a successful submission.
type ResetOutcome struct {
	Method         ResetMethod
	Screen         string
	VerificationID string
}

func newResetForm(c *Client) *ResetForm {
	f := &ResetForm{
		client: c,
		method: ResetMethodEmail,
	}
	f.state = form.New(f.validator(ResetMethodEmail), FieldEmail, FieldPhoneNumber)
	return f
}

func (f *ResetForm) validator(method ResetMethod) form.ValidateFunc {
	return func(v form.Values) map[string]string {
		return validateReset(method, v[FieldEmail], v[FieldPhoneNumber])
	}
}

// Method returns the active recovery channel.
func (f *ResetForm) Method() ResetMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.method
}

// ToggleMethod switches between email and phone mode. Touched flags, field
// errors and the service error are cleared; entered values are kept.
func (f *ResetForm) ToggleMethod() ResetMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.method == ResetMethodEmail {
		f.method = ResetMethodPhone
	} else {
		f.method = ResetMethodEmail
	}
	f.serviceErr = ""
	f.state.SetValidator(f.validator(f.method))
	f.state.ResetStatus()
	return f.method
}

// Change is the field change handler.
func (f *ResetForm) Change(field, value string) {
	f.state.Change(field, value)
}

// Blur is the field blur handler.
func (f *ResetForm) Blur(field string) {
	f.state.Blur(field)
}

// Value returns the current text of field.
func (f *ResetForm) Value(field string) string {
	return f.state.Value(field)
}

// FieldError returns the validation message for field once it is touched.
func (f *ResetForm) FieldError(field string) string {
	return f.state.VisibleError(field)
}

// ActiveError returns the visible validation message for the active field.
func (f *ResetForm) ActiveError() string {
	return f.FieldError(f.Method().Field())
}

// ServiceError returns the identity service's failure text from the last
// submission, shown in the shared error region.
func (f *ResetForm) ServiceError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serviceErr
}

// Snapshot returns a copy of the underlying form state.
func (f *ResetForm) Snapshot() form.View {
	return f.state.Snapshot()
}

// Submit validates the active field and dispatches the reset request.
//
// Validation failures return [ErrResetValidation] with the field marked
// touched and no outbound request. Service failures return
// [ErrResetDispatch] and store the service message for ServiceError. There
// is no automatic retry.
func (f *ResetForm) Submit(ctx context.Context) (ResetOutcome, error) {
	if f == nil || f.client == nil {
		return ResetOutcome{}, ErrClientNotReady
	}
	if !f.submitting.CompareAndSwap(false, true) {
		return ResetOutcome{}, ErrResetInProgress
	}
	defer f.submitting.Store(false)

	method := f.Method()
	field := method.Field()
	f.state.Touch(field)
	// Validate the captured mode; ToggleMethod may swap the form validator meanwhile.
	values := f.state.Snapshot().Values
	if msg := validateReset(method, values[FieldEmail], values[FieldPhoneNumber])[field]; msg != "" {
		err := fmt.Errorf("%w: %s", ErrResetValidation, msg)
		f.client.metricInc(MetricResetValidationFailure)
		f.client.emitAudit(ctx, auditEventResetValidation, false, "", "", string(method), err, func() map[string]string {
			return map[string]string{"field": field}
		})
		return ResetOutcome{}, err
	}

	f.setServiceError("")
	value := values[field]

	var (
		res flows.ResetResult
		err error
	)
	if method == ResetMethodPhone {
		res, err = f.client.flows.ResetPhone(ctx, value)
	} else {
		res, err = f.client.flows.ResetEmail(ctx, value)
	}

	if res.ServiceMessage != "" {
		f.setServiceError(res.ServiceMessage)
	} else if err != nil && !errors.Is(err, ErrNavigation) && !errors.Is(err, ErrClientNotReady) {
		f.setServiceError(err.Error())
	}
	if err != nil {
		f.client.logger.WarnContext(ctx, "reset submission failed", "method", string(method), "error", err)
		return ResetOutcome{Method: method, VerificationID: res.VerificationID}, err
	}

	out := ResetOutcome{Method: method, Screen: ScreenLogin}
	if method == ResetMethodPhone {
		out.Screen = ScreenVerifyOTP
		out.VerificationID = res.VerificationID
	}
	f.discard()
	return out, nil
}

// BackToLogin navigates to the login screen and discards the form.
func (f *ResetForm) BackToLogin(ctx context.Context) error {
	if f == nil || f.client == nil {
		return ErrClientNotReady
	}
	if err := f.client.flows.NavigateLogin(ctx); err != nil {
		return err
	}
	f.discard()
	return nil
}

func (f *ResetForm) setServiceError(msg string) {
	f.mu.Lock()
	f.serviceErr = msg
	f.mu.Unlock()
}

func (f *ResetForm) discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serviceErr = ""
	f.state.Reset()
}
