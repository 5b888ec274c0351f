// Package roster opens ledger accounts in bulk from a community member
// spreadsheet.
package roster

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	enc "github.com/MrJamesThe3rd/timebank/internal/encoding"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

// Header aliases, compared case-insensitively.
var (
	userIDCols = []string{"user_id", "member_id", "userid"}
	hoursCols  = []string{"opening_hours", "hours", "opening_balance"}
)

var ErrNoHeader = errors.New("roster: no user_id column found")

// Member is one roster row. Row is the 1-based CSV record number, blank
// lines not counted. OpeningHours is nil when the cell is empty or the
// column is absent.
type Member struct {
	Row          int
	UserID       uuid.UUID
	OpeningHours *decimal.Decimal
}

// Parse reads a roster CSV. Rows above the header are ignored, so exports
// with a title block work as they are. Both comma and semicolon separated
// files are accepted.
func Parse(r io.Reader) ([]Member, error) {
	utf8r, charset, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	content, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	slog.Debug("parsing roster", "charset", charset, "bytes", len(content))

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = sniffDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	headerIdx, idCol, hoursCol := findHeader(rows)
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	var members []Member

	for i, row := range rows[headerIdx+1:] {
		rowNum := headerIdx + i + 2

		raw := cellValue(row, idCol)
		if raw == "" {
			continue
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid user_id %q", rowNum, raw)
		}

		m := Member{Row: rowNum, UserID: id}

		if s := cellValue(row, hoursCol); s != "" {
			hours, err := parseHours(s)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid opening hours %q", rowNum, s)
			}

			m.OpeningHours = &hours
		}

		members = append(members, m)
	}

	return members, nil
}

// sniffDelimiter picks ';' when the header line, or the first line if no
// header is found, has more semicolons than commas.
func sniffDelimiter(content []byte) rune {
	header, _, _ := bytes.Cut(content, []byte("\n"))

	for l := range bytes.Lines(content) {
		if bytes.Contains(bytes.ToLower(l), []byte("user_id")) {
			header = l
			break
		}
	}

	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		return ';'
	}

	return ','
}

// findHeader returns the header row index and the id and hours column
// indexes, or -1 when there is no header. hoursCol is -1 when absent.
func findHeader(rows [][]string) (int, int, int) {
	for rowIdx, row := range rows {
		idCol, hoursCol := -1, -1

		for i, cell := range row {
			name := strings.ToLower(strings.TrimSpace(cell))

			switch {
			case idCol < 0 && slices.Contains(userIDCols, name):
				idCol = i
			case hoursCol < 0 && slices.Contains(hoursCols, name):
				hoursCol = i
			}
		}

		if idCol >= 0 {
			return rowIdx, idCol, hoursCol
		}
	}

	return -1, -1, -1
}

// parseHours accepts "1.5" and the decimal comma form "1,5".
func parseHours(s string) (decimal.Decimal, error) {
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}

	return decimal.NewFromString(s)
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

type AccountOpener interface {
	OpenAccount(ctx context.Context, userID uuid.UUID) (*timebank.Account, error)
	OpenAccountWithBalance(ctx context.Context, userID uuid.UUID, opening decimal.Decimal) (*timebank.Account, error)
}

type Result struct {
	Opened  []uuid.UUID `json:"opened" yaml:"opened"`
	Skipped []uuid.UUID `json:"skipped" yaml:"skipped"`
}

type Importer struct {
	accounts AccountOpener
}

func NewImporter(accounts AccountOpener) *Importer {
	return &Importer{accounts: accounts}
}

// Import opens an account for every member. Members without opening hours
// get the configured starting balance. Members that already have an account
// are skipped; any other failure stops the import.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	members, err := Parse(r)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	for _, m := range members {
		if m.OpeningHours != nil {
			_, err = i.accounts.OpenAccountWithBalance(ctx, m.UserID, *m.OpeningHours)
		} else {
			_, err = i.accounts.OpenAccount(ctx, m.UserID)
		}

		switch {
		case errors.Is(err, timebank.ErrAccountExists):
			res.Skipped = append(res.Skipped, m.UserID)
		case err != nil:
			return res, fmt.Errorf("row %d: opening account for %s: %w", m.Row, m.UserID, err)
		default:
			res.Opened = append(res.Opened, m.UserID)
		}
	}

	slog.Info("roster imported", "opened", len(res.Opened), "skipped", len(res.Skipped))

	return res, nil
}
