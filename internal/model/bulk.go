package model

// BulkField is a member column that may be changed for many members at once.
type BulkField string

const (
	BulkName           BulkField = "name"
	BulkDateOfBirth    BulkField = "date_of_birth"
	BulkAddress        BulkField = "address"
	BulkBloodGroup     BulkField = "blood_group"
	BulkPhone          BulkField = "phone"
	BulkImagePath      BulkField = "image_path"
	BulkMembershipType BulkField = "membership_type"
	BulkJoiningDate    BulkField = "membership_joining_date"
	BulkRenewalDate    BulkField = "membership_renewal_date"
)

var bulkFields = []BulkField{
	BulkName, BulkDateOfBirth, BulkAddress, BulkBloodGroup, BulkPhone,
	BulkImagePath, BulkMembershipType, BulkJoiningDate, BulkRenewalDate,
}

// BulkFields returns the fields accepted by bulk edit, in display order.
func BulkFields() []BulkField {
	out := make([]BulkField, len(bulkFields))
	copy(out, bulkFields)
	return out
}

// ParseBulkField reports whether s names a bulk-editable field.
func ParseBulkField(s string) (BulkField, bool) {
	for _, f := range bulkFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// BulkResult reports the outcome of a bulk update. Each record is updated
// independently; one failure does not undo the others.
type BulkResult struct {
	Updated int
	Errors  []string
}
