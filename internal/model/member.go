package model

import "time"

// Membership types.
const (
	MembershipAnnually = "annually"
	MembershipLifetime = "lifetime"
)

type Member struct {
	ID             string    `db:"member_id" json:"member_id"`
	Name           string    `db:"name" json:"name"`
	DateOfBirth    string    `db:"date_of_birth" json:"date_of_birth"`
	Address        string    `db:"address" json:"address"`
	BloodGroup     string    `db:"blood_group" json:"blood_group"`
	Phone          string    `db:"phone" json:"phone"`
	ImagePath      string    `db:"image_path" json:"image_path"`
	ImageData      string    `db:"image_data" json:"-"`
	MembershipType string    `db:"membership_type" json:"membership_type"`
	JoiningDate    string    `db:"membership_joining_date" json:"membership_joining_date"`
	RenewalDate    string    `db:"membership_renewal_date" json:"membership_renewal_date"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// MemberInput is the validated form for creating a member.
type MemberInput struct {
	ID             string `validate:"required,memberid"`
	Name           string `validate:"required,max=200"`
	DateOfBirth    string `validate:"omitempty,datetime=2006-01-02"`
	Address        string `validate:"max=500"`
	BloodGroup     string `validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Phone          string `validate:"max=32"`
	ImagePath      string `validate:"omitempty,url"`
	MembershipType string `validate:"omitempty,oneof=annually lifetime"`
	JoiningDate    string `validate:"omitempty,datetime=2006-01-02"`
	Password       string `validate:"omitempty,min=4,max=72"`
}

// MemberUpdate is the validated form for editing an existing member.
// The member id is immutable and therefore absent.
type MemberUpdate struct {
	Name           string `validate:"required,max=200"`
	DateOfBirth    string `validate:"omitempty,datetime=2006-01-02"`
	Address        string `validate:"max=500"`
	BloodGroup     string `validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Phone          string `validate:"max=32"`
	ImagePath      string `validate:"omitempty,url"`
	MembershipType string `validate:"omitempty,oneof=annually lifetime"`
	JoiningDate    string `validate:"omitempty,datetime=2006-01-02"`
	RenewalDate    string `validate:"omitempty,datetime=2006-01-02"`
}

// MemberFilter narrows roster listings. Zero values match everything.
type MemberFilter struct {
	Search         string
	BloodGroup     string
	MembershipType string
}

// RosterStats summarises the roster for the admin dashboard.
type RosterStats struct {
	TotalMembers int `json:"total_members"`
	RecentLogins int `json:"recent_logins"`
	RenewalSoon  int `json:"renewal_soon"`
}
