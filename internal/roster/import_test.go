package roster

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/memberqr/internal/database"
	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/store"
)

func setupImporter(t *testing.T) (*Importer, *store.MemberStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms := store.NewMemberStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	im := NewImporter(ms, "123456", model.NewValidator(), logger)
	im.now = func() time.Time { return time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC) }
	return im, ms
}

func workbook(t *testing.T, rows [][]any) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	return f
}

func workbookBytes(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	buf, err := workbook(t, rows).WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

var header = []any{"Member Id", "Name", "date of Bitrth", "Address", "Blood Group", "WhatsApp Number", "Image Path"}

func TestImport(t *testing.T) {
	im, ms := setupImporter(t)
	ctx := context.Background()

	buf := workbookBytes(t, [][]any{
		header,
		{"M001", "Alice", "1990-04-01", "1 Main St", "O+", "5550001", "https://drive.google.com/file/d/abc/view"},
		{"M002", "Bob", "", "", "ab -", "5550002", ""},
		{"", "No Id", "", "", "", "", ""},
	})

	res, err := im.Import(ctx, buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Inserted != 2 || res.Skipped != 0 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v, want 2 inserted", res)
	}

	m, err := ms.GetByID(ctx, "M001")
	if err != nil || m == nil {
		t.Fatalf("get M001: %v, %v", m, err)
	}
	if m.MembershipType != model.MembershipLifetime {
		t.Errorf("type = %q, want lifetime", m.MembershipType)
	}
	if m.JoiningDate != "2025-02-03" {
		t.Errorf("joining = %q, want import day", m.JoiningDate)
	}
	if m.RenewalDate != "2099-12-31" {
		t.Errorf("renewal = %q, want 2099-12-31", m.RenewalDate)
	}
	if m.Phone != "5550001" {
		t.Errorf("phone = %q, want 5550001", m.Phone)
	}
	if ok, _ := ms.VerifyPassword(ctx, "M001", "123456"); !ok {
		t.Error("imported member should have the default password")
	}

	bob, _ := ms.GetByID(ctx, "M002")
	if bob.BloodGroup != "AB-" {
		t.Errorf("blood group = %q, want normalized AB-", bob.BloodGroup)
	}
}

func TestImportIgnoresExisting(t *testing.T) {
	im, ms := setupImporter(t)
	ctx := context.Background()
	if _, err := ms.Create(ctx, model.MemberInput{ID: "M001", Name: "Original", Password: "pw1234"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := im.Import(ctx, workbookBytes(t, [][]any{
		header,
		{"M001", "Replacement"},
		{"M002", "New"},
	}))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 inserted 1 skipped", res)
	}
	m, _ := ms.GetByID(ctx, "M001")
	if m.Name != "Original" {
		t.Errorf("name = %q, existing member must not be overwritten", m.Name)
	}
}

func TestImportRowErrorsAccumulate(t *testing.T) {
	im, _ := setupImporter(t)

	res, err := im.Import(context.Background(), workbookBytes(t, [][]any{
		header,
		{"bad/id", "Slash"},
		{"M010", ""},
		{"M011", "Fine"},
	}))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", res.Inserted)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", res.Errors)
	}
	if !strings.Contains(res.Errors[0], "row 2") || !strings.Contains(res.Errors[1], "Name is required") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestImportMissingColumns(t *testing.T) {
	im, _ := setupImporter(t)
	_, err := im.Import(context.Background(), workbookBytes(t, [][]any{{"Name", "Address"}, {"A", "B"}}))
	if err == nil || !strings.Contains(err.Error(), "Member Id") {
		t.Errorf("err = %v, want missing Member Id column", err)
	}
}

func TestImportNotAWorkbook(t *testing.T) {
	im, _ := setupImporter(t)
	if _, err := im.Import(context.Background(), strings.NewReader("member_id,name\nM1,A\n")); err == nil {
		t.Fatal("expected error for non-xlsx input")
	}
}

func TestImportFile(t *testing.T) {
	im, ms := setupImporter(t)
	path := filepath.Join(t.TempDir(), "members.xlsx")
	f := workbook(t, [][]any{{"member_id", "name", "date_of_birth"}, {"M9", "Nia", "1/2/2001"}})
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}

	res, err := im.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("import file: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", res.Inserted)
	}
	m, _ := ms.GetByID(context.Background(), "M9")
	if m.DateOfBirth != "2001-01-02" {
		t.Errorf("dob = %q, want normalized 2001-01-02", m.DateOfBirth)
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"2020-05-06":          "2020-05-06",
		"2020/05/06":          "2020-05-06",
		"5/6/2020":            "2020-05-06",
		"05-06-20":            "2020-05-06",
		"2020-05-06 00:00:00": "2020-05-06",
		"":                    "",
		"sometime":            "sometime",
	}
	for in, want := range tests {
		if got := normalizeDate(in); got != want {
			t.Errorf("normalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}
