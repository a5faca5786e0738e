// Package roster loads members from spreadsheet exports.
package roster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/memberqr/internal/membership"
	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/store"
)

// Column headers, matched case-insensitively. Some exports carry the
// misspelled date of birth header, so both spellings are accepted.
var columnAliases = map[string][]string{
	"id":      {"member id", "member_id"},
	"name":    {"name"},
	"dob":     {"date of bitrth", "date of birth", "date_of_birth"},
	"address": {"address"},
	"blood":   {"blood group", "blood_group"},
	"phone":   {"whatsapp number", "phone"},
	"image":   {"image path", "image_path"},
}

var dateLayouts = []string{
	membership.DateLayout,
	"2006/01/02",
	"01-02-06",
	"1/2/2006",
	"1/2/06",
	"02.01.2006",
	"2006-01-02 15:04:05",
}

type MemberInserter interface {
	InsertIgnore(ctx context.Context, in model.MemberInput, passwordHash string) (bool, error)
}

// Result summarises an import. Rows whose member id already exists are
// skipped, not updated.
type Result struct {
	Inserted int
	Skipped  int
	Errors   []string
}

type Importer struct {
	members         MemberInserter
	defaultPassword string
	validate        *validator.Validate
	logger          *slog.Logger
	now             func() time.Time
}

// NewImporter creates a new Importer. Rows without a password get defaultPassword.
func NewImporter(members MemberInserter, defaultPassword string, validate *validator.Validate, logger *slog.Logger) *Importer {
	return &Importer{
		members:         members,
		defaultPassword: defaultPassword,
		validate:        validate,
		logger:          logger.With("component", "roster"),
		now:             time.Now,
	}
}

// ImportFile imports the workbook at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return im.importWorkbook(ctx, f)
}

// Import reads an .xlsx workbook from r and inserts every new member from its
// first sheet. Imported members are lifetime members joining today with the
// default password. Row errors accumulate and do not stop the import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return im.importWorkbook(ctx, f)
}

func (im *Importer) importWorkbook(ctx context.Context, f *excelize.File) (Result, error) {
	var res Result
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return res, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return res, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	cols := headerIndex(rows[0])
	if _, ok := cols["id"]; !ok {
		return res, fmt.Errorf("missing %q column", "Member Id")
	}
	if _, ok := cols["name"]; !ok {
		return res, fmt.Errorf("missing %q column", "Name")
	}

	hash, err := store.HashPassword(im.defaultPassword)
	if err != nil {
		return res, err
	}
	today := membership.Today(im.now())

	for i, row := range rows[1:] {
		line := i + 2
		cell := func(key string) string {
			idx, ok := cols[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		id := cell("id")
		if id == "" {
			continue
		}
		in := model.MemberInput{
			ID:             id,
			Name:           cell("name"),
			DateOfBirth:    normalizeDate(cell("dob")),
			Address:        cell("address"),
			BloodGroup:     strings.ToUpper(strings.ReplaceAll(cell("blood"), " ", "")),
			Phone:          cell("phone"),
			ImagePath:      cell("image"),
			MembershipType: model.MembershipLifetime,
			JoiningDate:    today,
		}
		if err := im.validate.Struct(in); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d (%s): %s", line, id, strings.Join(model.ValidationMessages(err), "; ")))
			continue
		}

		inserted, err := im.members.InsertIgnore(ctx, in, hash)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d (%s): %v", line, id, err))
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	im.logger.Info("roster import finished", "inserted", res.Inserted, "skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for key, aliases := range columnAliases {
			if _, seen := idx[key]; seen {
				continue
			}
			for _, a := range aliases {
				if h == a {
					idx[key] = i
				}
			}
		}
	}
	return idx
}

// normalizeDate converts common spreadsheet date renderings to YYYY-MM-DD.
// Values that match no known layout are returned as given.
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(membership.DateLayout)
		}
	}
	return s
}
