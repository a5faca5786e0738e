package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/memberqr/internal/membership"
	"github.com/dukerupert/memberqr/internal/model"
)

var (
	// ErrMemberNotFound is returned by mutations that matched no member row.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberExists is returned when creating a member whose id is taken.
	ErrMemberExists = errors.New("member id already exists")
)

// listCols leaves out image_data; cached photos are only loaded one member
// at a time.
const listCols = `member_id, name, date_of_birth, address, blood_group, phone, image_path,
	membership_type, membership_joining_date, membership_renewal_date, created_at, updated_at`

const memberCols = listCols + `, image_data`

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// MemberStore is the roster. It also serves as the credential store for the
// member login flow.
type MemberStore struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewMemberStore creates a new MemberStore.
func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{
		db:  sqlx.NewDb(db, "sqlite3"),
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}
}

func (s *MemberStore) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Create inserts a new member. The renewal date is derived from the membership
// type and joining date; an empty joining date means today.
func (s *MemberStore) Create(ctx context.Context, in model.MemberInput) (*model.Member, error) {
	existing, err := s.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrMemberExists
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	typ := membership.NormalizeType(in.MembershipType)
	joined := in.JoiningDate
	if joined == "" {
		joined = membership.Today(s.now())
	}

	_, err = s.exec(ctx, s.sb.Insert("members").
		Columns("member_id", "name", "date_of_birth", "address", "blood_group", "phone", "image_path",
			"membership_type", "membership_joining_date", "membership_renewal_date", "password_hash").
		Values(in.ID, in.Name, in.DateOfBirth, in.Address, in.BloodGroup, in.Phone, in.ImagePath,
			typ, joined, membership.RenewalDate(typ, joined), hash))
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return s.GetByID(ctx, in.ID)
}

// InsertIgnore inserts a member with a precomputed password hash unless the id
// already exists. It reports whether a row was inserted.
func (s *MemberStore) InsertIgnore(ctx context.Context, in model.MemberInput, passwordHash string) (bool, error) {
	typ := membership.NormalizeType(in.MembershipType)
	joined := in.JoiningDate
	if joined == "" {
		joined = membership.Today(s.now())
	}
	n, err := s.exec(ctx, s.sb.Insert("members").Options("OR IGNORE").
		Columns("member_id", "name", "date_of_birth", "address", "blood_group", "phone", "image_path",
			"membership_type", "membership_joining_date", "membership_renewal_date", "password_hash").
		Values(in.ID, in.Name, in.DateOfBirth, in.Address, in.BloodGroup, in.Phone, in.ImagePath,
			typ, joined, membership.RenewalDate(typ, joined), passwordHash))
	if err != nil {
		return false, fmt.Errorf("insert member %s: %w", in.ID, err)
	}
	return n > 0, nil
}

func (s *MemberStore) GetByID(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	err := s.db.GetContext(ctx, &m, `SELECT `+memberCols+` FROM members WHERE member_id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// List returns members matching f, ordered by name.
func (s *MemberStore) List(ctx context.Context, f model.MemberFilter) ([]model.Member, error) {
	b := s.sb.Select(listCols).From("members").OrderBy("name", "member_id")
	if f.Search != "" {
		p := "%" + f.Search + "%"
		b = b.Where(sq.Or{
			sq.Like{"name": p},
			sq.Like{"member_id": p},
			sq.Like{"phone": p},
		})
	}
	if f.BloodGroup != "" {
		b = b.Where(sq.Eq{"blood_group": f.BloodGroup})
	}
	if f.MembershipType != "" {
		b = b.Where(sq.Eq{"membership_type": f.MembershipType})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build member query: %w", err)
	}
	var members []model.Member
	if err := s.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// ListWithImages returns members that have an image path set.
func (s *MemberStore) ListWithImages(ctx context.Context) ([]model.Member, error) {
	query, args, err := s.sb.Select(listCols).From("members").
		Where(sq.NotEq{"image_path": ""}).OrderBy("member_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build member query: %w", err)
	}
	var members []model.Member
	if err := s.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list members with images: %w", err)
	}
	return members, nil
}

func (s *MemberStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM members`); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// Update replaces the editable fields of a member and recomputes the renewal
// date. The supplied renewal date is kept only when none can be derived.
func (s *MemberStore) Update(ctx context.Context, id string, u model.MemberUpdate) error {
	typ := membership.NormalizeType(u.MembershipType)
	n, err := s.exec(ctx, s.sb.Update("members").SetMap(map[string]any{
		"name":                    u.Name,
		"date_of_birth":           u.DateOfBirth,
		"address":                 u.Address,
		"blood_group":             u.BloodGroup,
		"phone":                   u.Phone,
		"image_path":              u.ImagePath,
		"membership_type":         typ,
		"membership_joining_date": u.JoiningDate,
		"membership_renewal_date": membership.RenewalOrFallback(typ, u.JoiningDate, u.RenewalDate),
		"updated_at":              sq.Expr("CURRENT_TIMESTAMP"),
	}).Where(sq.Eq{"member_id": id}))
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// Delete removes a member. Login attempts go with it.
func (s *MemberStore) Delete(ctx context.Context, id string) error {
	n, err := s.exec(ctx, s.sb.Delete("members").Where(sq.Eq{"member_id": id}))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// BulkUpdate sets field to value on each listed member. Records are updated
// one at a time with no enclosing transaction. Ids that match no row count as
// errors. Changing the membership type recomputes the renewal date from the
// stored joining date.
func (s *MemberStore) BulkUpdate(ctx context.Context, ids []string, field model.BulkField, value string) model.BulkResult {
	var res model.BulkResult
	for _, id := range ids {
		set := map[string]any{
			string(field): value,
			"updated_at":  sq.Expr("CURRENT_TIMESTAMP"),
		}
		if field == model.BulkMembershipType {
			m, err := s.GetByID(ctx, id)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Error updating %s: %v", id, err))
				continue
			}
			if m == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Error updating %s: no member with that id", id))
				continue
			}
			if d := membership.RenewalDate(value, m.JoiningDate); d != "" {
				set["membership_renewal_date"] = d
			}
		}

		n, err := s.exec(ctx, s.sb.Update("members").SetMap(set).Where(sq.Eq{"member_id": id}))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Error updating %s: %v", id, err))
			continue
		}
		if n == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("Error updating %s: no member with that id", id))
			continue
		}
		res.Updated++
	}
	return res
}

// VerifyPassword reports whether plain matches the member's stored hash. An
// unknown member verifies as false.
func (s *MemberStore) VerifyPassword(ctx context.Context, id, plain string) (bool, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash, `SELECT password_hash FROM members WHERE member_id = ?`, id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get password hash: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil, nil
}

func (s *MemberStore) ChangePassword(ctx context.Context, id, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	n, err := s.exec(ctx, s.sb.Update("members").
		Set("password_hash", hash).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"member_id": id}))
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// ResetAllPasswords sets every member's password to newPassword and returns
// the number of members changed.
func (s *MemberStore) ResetAllPasswords(ctx context.Context, newPassword string) (int64, error) {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return 0, err
	}
	n, err := s.exec(ctx, s.sb.Update("members").
		Set("password_hash", hash).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")))
	if err != nil {
		return 0, fmt.Errorf("reset passwords: %w", err)
	}
	return n, nil
}

// SetImageData stores a fetched image as a data URL.
func (s *MemberStore) SetImageData(ctx context.Context, id, dataURL string) error {
	n, err := s.exec(ctx, s.sb.Update("members").
		Set("image_data", dataURL).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"member_id": id}))
	if err != nil {
		return fmt.Errorf("set image data: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// Stats counts the roster, distinct members with a successful login in the
// last seven days, and annual members renewing within thirty days.
func (s *MemberStore) Stats(ctx context.Context) (model.RosterStats, error) {
	var st model.RosterStats
	now := s.now().UTC()

	total, err := s.Count(ctx)
	if err != nil {
		return st, err
	}
	st.TotalMembers = total

	since := now.Add(-7 * 24 * time.Hour).Format(timestampLayout)
	if err := s.db.GetContext(ctx, &st.RecentLogins,
		`SELECT COUNT(DISTINCT member_id) FROM login_attempts WHERE success = 1 AND attempted_at >= ?`,
		since,
	); err != nil {
		return st, fmt.Errorf("count recent logins: %w", err)
	}

	today := membership.Today(now)
	horizon := membership.Today(now.AddDate(0, 0, 30))
	if err := s.db.GetContext(ctx, &st.RenewalSoon,
		`SELECT COUNT(*) FROM members
		 WHERE membership_type = ? AND membership_renewal_date BETWEEN ? AND ?`,
		model.MembershipAnnually, today, horizon,
	); err != nil {
		return st, fmt.Errorf("count renewals: %w", err)
	}
	return st, nil
}
