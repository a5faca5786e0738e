package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/token"
)

type fakeCreds struct {
	members   map[string]*model.Member
	passwords map[string]string
}

func (f *fakeCreds) GetByID(_ context.Context, id string) (*model.Member, error) {
	return f.members[id], nil
}

func (f *fakeCreds) VerifyPassword(_ context.Context, id, plain string) (bool, error) {
	pw, ok := f.passwords[id]
	return ok && pw == plain, nil
}

func (f *fakeCreds) ChangePassword(_ context.Context, id, next string) error {
	if _, ok := f.members[id]; !ok {
		return errors.New("no such member")
	}
	f.passwords[id] = next
	return nil
}

type attempt struct {
	memberID string
	success  bool
}

type fakeAttempts struct{ log []attempt }

func (f *fakeAttempts) Record(_ context.Context, memberID string, success bool) error {
	f.log = append(f.log, attempt{memberID, success})
	return nil
}

type fakeAdmins map[string]string

func (f fakeAdmins) Verify(_ context.Context, username, password string) (bool, error) {
	pw, ok := f[username]
	return ok && pw == password, nil
}

type fakeSession struct {
	member string
	admin  string
}

func (s *fakeSession) MemberID() (string, bool) {
	return s.member, s.member != ""
}

func (s *fakeSession) IsMemberLoggedIn(id string) bool {
	return s.member != "" && s.member == id
}

func (s *fakeSession) IsAdminLoggedIn() bool {
	return s.admin != ""
}

func (s *fakeSession) EstablishMember(id string) error {
	s.member = id
	return nil
}

func (s *fakeSession) EstablishAdmin(name string) error {
	s.admin = name
	return nil
}

func (s *fakeSession) Clear() error {
	s.member, s.admin = "", ""
	return nil
}

func (s *fakeSession) ClearAdmin() error {
	s.admin = ""
	return nil
}

type countingObserver map[string]int

func (c countingObserver) LoginAttempt(scope, outcome string) { c[scope+"/"+outcome]++ }

type flowFixture struct {
	flow     *Flow
	creds    *fakeCreds
	attempts *fakeAttempts
	codec    *token.Codec
	observed countingObserver
}

func setupFlow(t *testing.T) *flowFixture {
	t.Helper()
	creds := &fakeCreds{
		members: map[string]*model.Member{
			"M042": {ID: "M042", Name: "Alice"},
			"M043": {ID: "M043", Name: "Bob"},
		},
		passwords: map[string]string{"M042": "secret1", "M043": "other12"},
	}
	attempts := &fakeAttempts{}
	codec := token.NewCodec("k1")
	obs := countingObserver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flow := NewFlow(creds, attempts, fakeAdmins{"admin": "admin123"}, codec, obs, logger)
	return &flowFixture{flow: flow, creds: creds, attempts: attempts, codec: codec, observed: obs}
}

func TestStateString(t *testing.T) {
	if got := AwaitingPassword.String(); got != "awaiting_password" {
		t.Errorf("String = %q, want %q", got, "awaiting_password")
	}
	if got := State(99).String(); got != "state(99)" {
		t.Errorf("String = %q, want %q", got, "state(99)")
	}
}

func TestEnterDirect(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()

	out, err := fx.flow.Enter(ctx, &fakeSession{}, "M042")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if out.State != AwaitingPassword || out.MemberID != "M042" {
		t.Errorf("outcome = %v/%q, want awaiting_password/M042", out.State, out.MemberID)
	}

	out, _ = fx.flow.Enter(ctx, &fakeSession{}, "M999")
	if out.State != Rejected || !errors.Is(out.Err, ErrMemberNotFound) {
		t.Errorf("unknown member outcome = %v/%v, want rejected/ErrMemberNotFound", out.State, out.Err)
	}

	out, _ = fx.flow.Enter(ctx, &fakeSession{member: "M042"}, "M042")
	if out.State != Authenticated {
		t.Errorf("logged-in member state = %v, want authenticated", out.State)
	}

	out, _ = fx.flow.Enter(ctx, &fakeSession{member: "M043"}, "M042")
	if out.State != AwaitingPassword {
		t.Errorf("session for another member state = %v, want awaiting_password", out.State)
	}
}

func TestEnterSecureScopesToTokenMember(t *testing.T) {
	fx := setupFlow(t)
	tok, _ := fx.codec.Encode("M043")

	out, err := fx.flow.EnterSecure(context.Background(), &fakeSession{}, tok)
	if err != nil {
		t.Fatalf("enter secure: %v", err)
	}
	if out.State != AwaitingPassword {
		t.Fatalf("state = %v, want awaiting_password", out.State)
	}
	if out.MemberID != "M043" || out.Member.Name != "Bob" {
		t.Errorf("prompt scoped to %q (%v), want M043", out.MemberID, out.Member)
	}
}

func TestInvalidTokenNeverReachesPrompt(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()
	foreign, _ := token.NewCodec("k2").Encode("M042")

	for _, tok := range []string{"garbage", "", foreign} {
		sess := &fakeSession{}
		out, err := fx.flow.EnterSecure(ctx, sess, tok)
		if err != nil {
			t.Fatalf("enter secure: %v", err)
		}
		if out.State != Rejected || !errors.Is(out.Err, ErrInvalidToken) {
			t.Errorf("token %q: outcome = %v/%v, want rejected/ErrInvalidToken", tok, out.State, out.Err)
		}

		out, _ = fx.flow.SubmitSecurePassword(ctx, sess, tok, "secret1")
		if out.State != Rejected {
			t.Errorf("token %q: submit state = %v, want rejected", tok, out.State)
		}
		if sess.member != "" || sess.admin != "" {
			t.Errorf("token %q established a session: %+v", tok, sess)
		}
	}
	if len(fx.attempts.log) != 0 {
		t.Errorf("credential checks recorded for invalid tokens: %v", fx.attempts.log)
	}
}

func TestSubmitPassword(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()
	sess := &fakeSession{}

	out, _ := fx.flow.SubmitPassword(ctx, sess, "M042", "")
	if out.State != AwaitingPassword || !errors.Is(out.Err, ErrPasswordRequired) {
		t.Errorf("empty password = %v/%v, want awaiting_password/ErrPasswordRequired", out.State, out.Err)
	}
	if len(fx.attempts.log) != 0 {
		t.Error("empty password should not be recorded as an attempt")
	}

	out, _ = fx.flow.SubmitPassword(ctx, sess, "M042", "wrong")
	if out.State != AwaitingPassword || !errors.Is(out.Err, ErrPasswordMismatch) {
		t.Errorf("wrong password = %v/%v, want awaiting_password/ErrPasswordMismatch", out.State, out.Err)
	}
	if sess.member != "" {
		t.Error("wrong password established a session")
	}

	out, err := fx.flow.SubmitPassword(ctx, sess, "M042", "secret1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.State != Authenticated || out.Err != nil {
		t.Errorf("correct password = %v/%v, want authenticated", out.State, out.Err)
	}
	if sess.member != "M042" {
		t.Errorf("session member = %q, want M042", sess.member)
	}

	want := []attempt{{"M042", false}, {"M042", true}}
	if len(fx.attempts.log) != len(want) {
		t.Fatalf("attempts = %v, want %v", fx.attempts.log, want)
	}
	for i := range want {
		if fx.attempts.log[i] != want[i] {
			t.Errorf("attempt[%d] = %v, want %v", i, fx.attempts.log[i], want[i])
		}
	}
	if fx.observed["member/failure"] != 1 || fx.observed["member/success"] != 1 {
		t.Errorf("observed = %v", fx.observed)
	}
}

func TestSubmitPasswordUnknownMember(t *testing.T) {
	fx := setupFlow(t)
	out, _ := fx.flow.SubmitPassword(context.Background(), &fakeSession{}, "M999", "x")
	if !errors.Is(out.Err, ErrMemberNotFound) {
		t.Errorf("err = %v, want ErrMemberNotFound", out.Err)
	}
}

func TestChangePassword(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()

	tests := []struct {
		name                   string
		current, next, confirm string
		want                   error
	}{
		{"missing field", "secret1", "", "", ErrFieldsRequired},
		{"confirm mismatch", "secret1", "newpass1", "newpass2", ErrPasswordConfirm},
		{"too short", "secret1", "abc", "abc", ErrPasswordTooShort},
		{"wrong current", "nope", "newpass1", "newpass1", ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{member: "M042"}
			err := fx.flow.ChangePassword(ctx, sess, tt.current, tt.next, tt.confirm)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if sess.member != "M042" {
				t.Error("failed change must not clear the session")
			}
		})
	}

	if err := fx.flow.ChangePassword(ctx, &fakeSession{}, "a", "b", "b"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous change err = %v, want ErrNotAuthenticated", err)
	}
}

func TestChangePasswordThenLogin(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()
	sess := &fakeSession{member: "M042", admin: "admin"}

	if err := fx.flow.ChangePassword(ctx, sess, "secret1", "brandnew", "brandnew"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if sess.member != "" || sess.admin != "" {
		t.Errorf("session not cleared after change: %+v", sess)
	}

	out, _ := fx.flow.SubmitPassword(ctx, sess, "M042", "secret1")
	if out.State != AwaitingPassword || !errors.Is(out.Err, ErrPasswordMismatch) {
		t.Errorf("old password = %v/%v, want rejection", out.State, out.Err)
	}
	out, _ = fx.flow.SubmitPassword(ctx, sess, "M042", "brandnew")
	if out.State != Authenticated {
		t.Errorf("new password state = %v, want authenticated", out.State)
	}
}

func TestAdminLogin(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()
	sess := &fakeSession{}

	out, _ := fx.flow.AdminLogin(ctx, sess, "admin", "")
	if out.State != AdminAnonymous {
		t.Errorf("empty password state = %v, want admin_anonymous", out.State)
	}
	out, _ = fx.flow.AdminLogin(ctx, sess, "admin", "wrong")
	if out.State != AdminAnonymous || !errors.Is(out.Err, ErrPasswordMismatch) {
		t.Errorf("wrong password = %v/%v", out.State, out.Err)
	}
	out, err := fx.flow.AdminLogin(ctx, sess, "admin", "admin123")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if out.State != AdminAuthenticated || sess.admin != "admin" {
		t.Errorf("state = %v, admin = %q", out.State, sess.admin)
	}
	if sess.member != "" {
		t.Error("admin login must not create a member scope")
	}
}

func TestAdminViewNeedsNoMemberPassword(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()

	for _, id := range []string{"M042", "M043"} {
		m, err := fx.flow.AdminView(ctx, &fakeSession{admin: "admin"}, id)
		if err != nil {
			t.Fatalf("admin view %s: %v", id, err)
		}
		if m.ID != id {
			t.Errorf("viewed %q, want %q", m.ID, id)
		}
	}
	if len(fx.attempts.log) != 0 {
		t.Error("admin view must not perform member credential checks")
	}

	if _, err := fx.flow.AdminView(ctx, &fakeSession{member: "M042"}, "M043"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("member session err = %v, want ErrNotAuthorized", err)
	}
	if _, err := fx.flow.AdminView(ctx, &fakeSession{admin: "admin"}, "M999"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("missing member err = %v, want ErrMemberNotFound", err)
	}
}

func TestLogout(t *testing.T) {
	fx := setupFlow(t)

	sess := &fakeSession{member: "M1", admin: "admin"}
	fx.flow.AdminLogout(sess)
	if sess.admin != "" || sess.member != "M1" {
		t.Errorf("admin logout = %+v, want member kept", sess)
	}

	sess = &fakeSession{member: "M1", admin: "admin"}
	fx.flow.Logout(sess)
	if sess.admin != "" || sess.member != "" {
		t.Errorf("logout = %+v, want both cleared", sess)
	}
}

func TestInvalidTokenCountedOncePerRequest(t *testing.T) {
	fx := setupFlow(t)
	ctx := context.Background()

	if _, err := fx.flow.EnterSecure(ctx, &fakeSession{}, "garbage"); err != nil {
		t.Fatalf("enter secure: %v", err)
	}
	if got := fx.observed["member/rejected"]; got != 1 {
		t.Errorf("rejected after GET = %d, want 1", got)
	}

	if _, err := fx.flow.SubmitSecurePassword(ctx, &fakeSession{}, "garbage", "secret1"); err != nil {
		t.Fatalf("submit secure: %v", err)
	}
	if got := fx.observed["member/rejected"]; got != 2 {
		t.Errorf("rejected after POST = %d, want 2", got)
	}
}
