package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/spf13/cobra"
)

var forgotCmd = &cobra.Command{
	Use:   "forgot-password",
	Short: "Request a password reset email or a phone verification code",
	Long: `Run the forgot-password flow once.

Email mode asks Kratos to send a recovery code and returns to Login.
Phone mode sends a one-time code to the number and moves to VerifyOTP with
the verification id of this request.

Examples:
  authflow forgot-password --email alice@example.com
  authflow forgot-password --method phone --phone 5551234567 --captcha-token T`,
	RunE: runForgot,
}

func init() {
	rootCmd.AddCommand(forgotCmd)

	forgotCmd.Flags().String("method", "email", "recovery channel: email or phone")
	forgotCmd.Flags().String("email", "", "account email (email mode)")
	forgotCmd.Flags().String("phone", "", "10-digit phone number (phone mode)")
	forgotCmd.Flags().String("captcha-token", "", "solved human-verification token (phone mode)")
}

func runForgot(cmd *cobra.Command, args []string) error {
	method, _ := cmd.Flags().GetString("method")
	email, _ := cmd.Flags().GetString("email")
	phone, _ := cmd.Flags().GetString("phone")
	captcha, _ := cmd.Flags().GetString("captcha-token")

	method = strings.ToLower(strings.TrimSpace(method))
	if method != string(authflow.ResetMethodEmail) && method != string(authflow.ResetMethodPhone) {
		return fmt.Errorf("unknown method %q (want email or phone)", method)
	}

	var challenges authflow.ChallengeFactory
	if captcha != "" {
		challenges = func(string) (authflow.Challenge, error) {
			return authflow.StaticChallenge(captcha), nil
		}
	}

	out := cmd.OutOrStdout()
	rt, err := newRuntime(cmd.Context(), out, challenges)
	if err != nil {
		return err
	}
	defer rt.Close()

	form := rt.client.NewResetForm()
	if method == string(authflow.ResetMethodPhone) {
		form.ToggleMethod()
		form.Change(authflow.FieldPhoneNumber, phone)
	} else {
		form.Change(authflow.FieldEmail, email)
	}

	outcome, err := form.Submit(cmd.Context())
	switch {
	case err == nil:
	case errors.Is(err, authflow.ErrResetValidation):
		return fmt.Errorf("%s", form.ActiveError())
	case errors.Is(err, authflow.ErrClientNotReady) && method == string(authflow.ResetMethodPhone):
		return errors.New("phone mode requires --captcha-token")
	case form.ServiceError() != "":
		return fmt.Errorf("%s", form.ServiceError())
	default:
		return err
	}

	if outcome.Method == authflow.ResetMethodPhone {
		fmt.Fprintf(out, "verification code sent (verificationId=%s)\n", outcome.VerificationID)
		return nil
	}
	fmt.Fprintln(out, "password reset email sent")
	return nil
}
