package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"carecal/internal/domain/account"
	"carecal/internal/domain/otp"
	"carecal/internal/domain/outbox"
)

// OTP request throttling per phone number.
const (
	MaxOTPRequestsPerWindow = 5
	OTPRequestWindow        = time.Hour
)

// Delivery channels reported by RequestOTP.
const (
	OTPChannelEmail = "email"
	OTPChannelLog   = "log"
	OTPChannelNone  = "none"
)

// AccountStoreForOTP defines the account lookups needed by phone login.
type AccountStoreForOTP interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	GetByPhone(ctx context.Context, phone string) (account.Account, error)
}

// OTPStore defines the challenge persistence needed by phone login.
type OTPStore interface {
	Save(ctx context.Context, c otp.Challenge) error
	LatestForPhone(ctx context.Context, phone string) (otp.Challenge, error)
	CountSince(ctx context.Context, phone string, since time.Time) (int, error)
}

// OutboxEnqueuer accepts outgoing messages for background delivery.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, e outbox.Entry) (bool, error)
}

// RequestOTPInput carries the phone number to send a code to.
type RequestOTPInput struct {
	Phone string
}

// RequestOTPResult describes what happened to the request.
// Handlers must not echo it to the caller, so unknown phones stay indistinguishable.
type RequestOTPResult struct {
	ChallengeID string
	Channel     string
	ExpiresAt   time.Time
}

// OTPDeps holds dependencies for RequestOTP and VerifyOTP.
type OTPDeps struct {
	AccountStore AccountStoreForOTP
	OTPStore     OTPStore
	Outbox       OutboxEnqueuer
	GenerateID   func() string
	Now          func() time.Time
	// LogCodes writes codes to the log when no email is on file. Development only.
	LogCodes bool
}

// ExecuteRequestOTP issues a one-time login code for a phone number.
// PRE: Phone is non-empty
// POST: A challenge is stored and the code queued for delivery, or nothing happens for unknown phones
// INVARIANT: at most MaxOTPRequestsPerWindow challenges per phone per OTPRequestWindow; a throttled
// request answers exactly like an unknown phone
func ExecuteRequestOTP(ctx context.Context, input RequestOTPInput, deps OTPDeps) (RequestOTPResult, error) {
	phone := account.NormalizePhone(input.Phone)
	if phone == "" {
		return RequestOTPResult{}, account.ErrInvalidPhone
	}

	acct, err := deps.AccountStore.GetByPhone(ctx, phone)
	if err != nil || acct.IsStaff() {
		slog.Info("auth_event", "event", "otp_requested_unknown", "phone", phone)
		return RequestOTPResult{Channel: OTPChannelNone}, nil
	}

	now := deps.Now()
	recent, err := deps.OTPStore.CountSince(ctx, phone, now.Add(-OTPRequestWindow))
	if err != nil {
		return RequestOTPResult{}, err
	}
	if recent >= MaxOTPRequestsPerWindow {
		slog.Warn("auth_event", "event", "otp_rate_limited", "phone", phone, "recent", recent)
		return RequestOTPResult{Channel: OTPChannelNone}, nil
	}

	ch, code, err := otp.NewChallenge(deps.GenerateID(), acct.ID, phone, now)
	if err != nil {
		return RequestOTPResult{}, err
	}
	if err := deps.OTPStore.Save(ctx, ch); err != nil {
		return RequestOTPResult{}, err
	}

	result := RequestOTPResult{ChallengeID: ch.ID, ExpiresAt: ch.ExpiresAt}
	switch {
	case acct.Email != "":
		entry, err := outbox.NewEmail(deps.GenerateID(), outbox.EmailPayload{
			Kind:    outbox.KindLoginCode,
			To:      acct.Email,
			Subject: "Your CareCal login code",
			Text:    fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(otp.TTL/time.Minute)),
		}, "", now)
		if err != nil {
			return RequestOTPResult{}, err
		}
		if _, err := deps.Outbox.Enqueue(ctx, entry); err != nil {
			return RequestOTPResult{}, fmt.Errorf("queue login code: %w", err)
		}
		result.Channel = OTPChannelEmail
	case deps.LogCodes:
		slog.Warn("auth_event", "event", "otp_code_logged", "phone", phone, "code", code)
		result.Channel = OTPChannelLog
	default:
		slog.Warn("auth_event", "event", "otp_undeliverable", "phone", phone, "account_id", acct.ID)
		result.Channel = OTPChannelNone
	}

	slog.Info("auth_event", "event", "otp_issued", "phone", phone, "channel", result.Channel)
	return result, nil
}

// VerifyOTPInput carries the phone and the code the user typed.
type VerifyOTPInput struct {
	Phone string
	Code  string
}

// ExecuteVerifyOTP checks a code against the latest challenge for the phone.
// PRE: Phone and Code are non-empty
// POST: On success the challenge is consumed and account info returned; every attempt is counted
func ExecuteVerifyOTP(ctx context.Context, input VerifyOTPInput, deps OTPDeps) (LoginResult, error) {
	phone := account.NormalizePhone(input.Phone)
	code := strings.TrimSpace(input.Code)
	if phone == "" || code == "" {
		return LoginResult{}, otp.ErrWrongCode
	}

	ch, err := deps.OTPStore.LatestForPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			slog.Info("auth_event", "event", "otp_failed", "phone", phone, "reason", "no_challenge")
			return LoginResult{}, otp.ErrNotFound
		}
		return LoginResult{}, err
	}

	verifyErr := ch.Verify(code, deps.Now())
	if err := deps.OTPStore.Save(ctx, ch); err != nil {
		return LoginResult{}, err
	}
	if verifyErr != nil {
		slog.Info("auth_event", "event", "otp_failed", "phone", phone, "reason", verifyErr.Error(), "attempts", ch.Attempts)
		return LoginResult{}, verifyErr
	}

	acct, err := deps.AccountStore.GetByID(ctx, ch.AccountID)
	if err != nil {
		return LoginResult{}, err
	}

	slog.Info("auth_event", "event", "otp_login_success", "phone", phone, "role", acct.Role)
	return LoginResult{
		AccountID: acct.ID,
		Email:     acct.Email,
		FullName:  acct.FullName,
		Role:      acct.Role,
	}, nil
}

// OTPPurger deletes expired challenges.
type OTPPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// ExecutePurgeExpiredOTP removes challenges that expired before now.
// PRE: none
// POST: returns the number of challenges removed
func ExecutePurgeExpiredOTP(ctx context.Context, store OTPPurger, now time.Time) (int, error) {
	n, err := store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("auth_event", "event", "otp_purged", "count", n)
	}
	return n, nil
}
