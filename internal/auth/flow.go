package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/token"
)

var (
	ErrInvalidToken     = token.ErrInvalidToken
	ErrMemberNotFound   = errors.New("member not found")
	ErrPasswordMismatch = errors.New("password mismatch")
	ErrPasswordRequired = errors.New("password is required")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAuthorized    = errors.New("admin access required")

	// Validation failures for a member changing their own password.
	ErrFieldsRequired   = errors.New("all fields are required")
	ErrPasswordConfirm  = errors.New("new passwords do not match")
	ErrPasswordTooShort = errors.New("new password is too short")
)

// MinOwnPasswordLength applies when members choose their own password.
const MinOwnPasswordLength = 6

// State is a position in the login flow.
type State int

const (
	Anonymous State = iota
	AwaitingPassword
	Authenticated
	Rejected
	AdminAnonymous
	AdminAuthenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case AwaitingPassword:
		return "awaiting_password"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	case AdminAnonymous:
		return "admin_anonymous"
	case AdminAuthenticated:
		return "admin_authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one step. Err explains why a step did not advance;
// it is nil on a clean transition.
type Outcome struct {
	State    State
	MemberID string
	Member   *model.Member
	Err      error
}

type Credentials interface {
	GetByID(ctx context.Context, id string) (*model.Member, error)
	VerifyPassword(ctx context.Context, id, plain string) (bool, error)
	ChangePassword(ctx context.Context, id, newPassword string) error
}

type AttemptLog interface {
	Record(ctx context.Context, memberID string, success bool) error
}

type Admins interface {
	Verify(ctx context.Context, username, password string) (bool, error)
}

type TokenDecoder interface {
	Decode(tok string) (string, error)
}

// Session is one client's session, bound to the current request.
type Session interface {
	MemberID() (string, bool)
	IsMemberLoggedIn(memberID string) bool
	IsAdminLoggedIn() bool
	EstablishMember(memberID string) error
	EstablishAdmin(username string) error
	Clear() error
	ClearAdmin() error
}

// Observer is notified of every password check. scope is "member" or
// "admin"; outcome is "success", "failure" or "rejected".
type Observer interface {
	LoginAttempt(scope, outcome string)
}

type nopObserver struct{}

func (nopObserver) LoginAttempt(string, string) {}

// Flow ties token validation, credential checks and session establishment
// together.
type Flow struct {
	creds    Credentials
	attempts AttemptLog
	admins   Admins
	tokens   TokenDecoder
	observer Observer
	logger   *slog.Logger
}

// NewFlow creates a new Flow.
func NewFlow(creds Credentials, attempts AttemptLog, admins Admins, tokens TokenDecoder, observer Observer, logger *slog.Logger) *Flow {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Flow{
		creds:    creds,
		attempts: attempts,
		admins:   admins,
		tokens:   tokens,
		observer: observer,
		logger:   logger.With("component", "auth"),
	}
}

// Enter handles direct entry at /login/{id}.
func (f *Flow) Enter(ctx context.Context, sess Session, memberID string) (Outcome, error) {
	m, err := f.creds.GetByID(ctx, memberID)
	if err != nil {
		return Outcome{}, fmt.Errorf("look up member: %w", err)
	}
	if m == nil {
		return Outcome{State: Rejected, MemberID: memberID, Err: ErrMemberNotFound}, nil
	}
	if sess.IsMemberLoggedIn(memberID) {
		return Outcome{State: Authenticated, MemberID: memberID, Member: m}, nil
	}
	return Outcome{State: AwaitingPassword, MemberID: memberID, Member: m}, nil
}

// EnterSecure handles entry through a signed token. A token that does not
// decode is rejected before any member lookup.
func (f *Flow) EnterSecure(ctx context.Context, sess Session, tok string) (Outcome, error) {
	memberID, err := f.tokens.Decode(tok)
	if err != nil {
		return f.rejectToken(), nil
	}
	return f.Enter(ctx, sess, memberID)
}

// rejectToken counts and logs a token that failed to decode.
func (f *Flow) rejectToken() Outcome {
	f.observer.LoginAttempt("member", "rejected")
	f.logger.Warn("rejected login token")
	return Outcome{State: Rejected, Err: ErrInvalidToken}
}

// SubmitPassword checks a password for memberID. Success establishes the
// member session; failure leaves the flow awaiting a password. Every check is
// recorded in the attempt log.
func (f *Flow) SubmitPassword(ctx context.Context, sess Session, memberID, password string) (Outcome, error) {
	out, err := f.Enter(ctx, sess, memberID)
	if err != nil || out.State == Rejected {
		return out, err
	}
	out.State = AwaitingPassword
	if password == "" {
		out.Err = ErrPasswordRequired
		return out, nil
	}

	ok, err := f.creds.VerifyPassword(ctx, memberID, password)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify password: %w", err)
	}
	if err := f.attempts.Record(ctx, memberID, ok); err != nil {
		f.logger.Error("record login attempt", "member_id", memberID, "error", err)
	}
	if !ok {
		f.observer.LoginAttempt("member", "failure")
		f.logger.Info("member login failed", "member_id", memberID)
		out.Err = ErrPasswordMismatch
		return out, nil
	}

	if err := sess.EstablishMember(memberID); err != nil {
		return Outcome{}, fmt.Errorf("establish member session: %w", err)
	}
	f.observer.LoginAttempt("member", "success")
	f.logger.Info("member logged in", "member_id", memberID)
	out.State = Authenticated
	return out, nil
}

// SubmitSecurePassword is SubmitPassword for the token entry path. An
// invalid token is rejected without checking any credential.
func (f *Flow) SubmitSecurePassword(ctx context.Context, sess Session, tok, password string) (Outcome, error) {
	memberID, err := f.tokens.Decode(tok)
	if err != nil {
		return f.rejectToken(), nil
	}
	return f.SubmitPassword(ctx, sess, memberID, password)
}

// ChangePassword lets the logged-in member replace their own password after
// re-verifying the current one. Success clears the whole session.
func (f *Flow) ChangePassword(ctx context.Context, sess Session, current, next, confirm string) error {
	memberID, ok := sess.MemberID()
	if !ok {
		return ErrNotAuthenticated
	}
	if current == "" || next == "" || confirm == "" {
		return ErrFieldsRequired
	}
	if next != confirm {
		return ErrPasswordConfirm
	}
	if len(next) < MinOwnPasswordLength {
		return ErrPasswordTooShort
	}

	valid, err := f.creds.VerifyPassword(ctx, memberID, current)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return ErrPasswordMismatch
	}
	if err := f.creds.ChangePassword(ctx, memberID, next); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	f.logger.Info("member changed password", "member_id", memberID)
	if err := sess.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// AdminLogin establishes the admin scope for valid credentials.
func (f *Flow) AdminLogin(ctx context.Context, sess Session, username, password string) (Outcome, error) {
	if username == "" || password == "" {
		return Outcome{State: AdminAnonymous, Err: ErrPasswordRequired}, nil
	}
	ok, err := f.admins.Verify(ctx, username, password)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify admin: %w", err)
	}
	if !ok {
		f.observer.LoginAttempt("admin", "failure")
		f.logger.Warn("admin login failed", "username", username)
		return Outcome{State: AdminAnonymous, Err: ErrPasswordMismatch}, nil
	}
	if err := sess.EstablishAdmin(username); err != nil {
		return Outcome{}, fmt.Errorf("establish admin session: %w", err)
	}
	f.observer.LoginAttempt("admin", "success")
	f.logger.Info("admin logged in", "username", username)
	return Outcome{State: AdminAuthenticated}, nil
}

// AdminView returns any member's profile to an admin. The admin session alone
// grants access; the member's password is never asked for.
func (f *Flow) AdminView(ctx context.Context, sess Session, memberID string) (*model.Member, error) {
	if !sess.IsAdminLoggedIn() {
		return nil, ErrNotAuthorized
	}
	m, err := f.creds.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("look up member: %w", err)
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// Logout ends both scopes.
func (f *Flow) Logout(sess Session) error {
	return sess.Clear()
}

// AdminLogout ends only the admin scope.
func (f *Flow) AdminLogout(sess Session) error {
	return sess.ClearAdmin()
}
