// Package gsheets archives messages in a Google Sheets spreadsheet, one worksheet per month.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"supportbot/internal/archive"
)

// ColumnNames is the header row of every worksheet
var ColumnNames = []string{"When, UTC", "Type", "Who", "To whom", "Text", "Filename", "Forward", "Subject"}

// ErrSpreadsheetNotFound is returned when no spreadsheet with the configured name
// is shared with the service account
var ErrSpreadsheetNotFound = errors.New("spreadsheet not found")

const defaultWorksheet = "Sheet1"

// Sheets appends archived messages to a spreadsheet
type Sheets struct {
	sheets   *sheets.Service
	drive    *drive.Service
	filename string
	logger   *zap.Logger

	mu            sync.Mutex
	spreadsheetID string
	worksheets    map[string]int64 // title -> sheet ID
}

// New authenticates with the service-account credentials file, or with the
// application default credentials when credFile is empty. The spreadsheet
// itself is looked up by name on first use
func New(ctx context.Context, credFile, filename string, logger *zap.Logger, opts ...option.ClientOption) (*Sheets, error) {
	base := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope, drive.DriveMetadataReadonlyScope)}
	if credFile != "" {
		base = append(base, option.WithCredentialsFile(credFile))
	}
	opts = append(base, opts...)

	sheetsSrv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	return &Sheets{
		sheets:   sheetsSrv,
		drive:    driveSrv,
		filename: filename,
		logger:   logger,
	}, nil
}

// Save appends the entry to the worksheet of its month
func (s *Sheets) Save(ctx context.Context, e archive.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Saving message to Google Sheet", zap.String("filename", s.filename))

	if err := s.openSpreadsheet(ctx); err != nil {
		return err
	}

	title := WorksheetName(e.At)
	sheetID, err := s.ensureWorksheet(ctx, title)
	if err != nil {
		return err
	}

	resp, err := s.sheets.Spreadsheets.Values.Append(s.spreadsheetID, a1(title, "A:"+lastColumn()),
		&sheets.ValueRange{Values: [][]interface{}{Row(e)}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	if !e.Highlight || resp.Updates == nil {
		return nil
	}
	row, err := RowOfRange(resp.Updates.UpdatedRange)
	if err != nil {
		return err
	}
	return s.format(ctx, &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(row - 1),
		EndRowIndex:      int64(row),
		StartColumnIndex: 0,
		EndColumnIndex:   4,
	}, false)
}

// Close is a no-op, the clients hold no connections of their own
func (s *Sheets) Close() error {
	return nil
}

func (s *Sheets) openSpreadsheet(ctx context.Context) error {
	if s.spreadsheetID != "" {
		return nil
	}

	query := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false",
		strings.ReplaceAll(s.filename, "'", `\'`))
	files, err := s.drive.Files.List().Q(query).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to look up spreadsheet: %w", err)
	}
	if len(files.Files) == 0 {
		return fmt.Errorf("%w: %q", ErrSpreadsheetNotFound, s.filename)
	}

	doc, err := s.sheets.Spreadsheets.Get(files.Files[0].Id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	s.spreadsheetID = files.Files[0].Id
	s.worksheets = make(map[string]int64, len(doc.Sheets))
	for _, sh := range doc.Sheets {
		s.worksheets[sh.Properties.Title] = sh.Properties.SheetId
	}
	return nil
}

// ensureWorksheet creates the month worksheet with its header and drops the default one
func (s *Sheets) ensureWorksheet(ctx context.Context, title string) (int64, error) {
	if id, ok := s.worksheets[title]; ok {
		return id, nil
	}

	requests := []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				Title: title,
				GridProperties: &sheets.GridProperties{
					RowCount:    5,
					ColumnCount: int64(len(ColumnNames)),
				},
			},
		},
	}}
	if id, ok := s.worksheets[defaultWorksheet]; ok {
		requests = append(requests, &sheets.Request{
			DeleteSheet: &sheets.DeleteSheetRequest{SheetId: id},
		})
	}

	resp, err := s.sheets.Spreadsheets.BatchUpdate(s.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to add worksheet %s: %w", title, err)
	}
	delete(s.worksheets, defaultWorksheet)

	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("no reply for added worksheet %s", title)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId
	s.worksheets[title] = id

	header := make([]interface{}, len(ColumnNames))
	for i, name := range ColumnNames {
		header[i] = name
	}
	_, err = s.sheets.Spreadsheets.Values.Update(s.spreadsheetID, a1(title, "A1:"+lastColumn()+"1"),
		&sheets.ValueRange{Values: [][]interface{}{header}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	err = s.format(ctx, &sheets.GridRange{
		SheetId:        id,
		StartRowIndex:  0,
		EndRowIndex:    1,
		EndColumnIndex: int64(len(ColumnNames)),
	}, true)
	return id, err
}

// format makes the range bold, and underlined when asked
func (s *Sheets) format(ctx context.Context, rng *sheets.GridRange, underline bool) error {
	fields := "userEnteredFormat.textFormat.bold"
	if underline {
		fields = "userEnteredFormat.textFormat(bold,underline)"
	}
	_, err := s.sheets.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: rng,
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true, Underline: underline},
					},
				},
				Fields: fields,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to format cells: %w", err)
	}
	return nil
}

// WorksheetName returns the worksheet title for the month of t, e.g. "2024-3"
func WorksheetName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
}

// CellText prepares a value to be entered as text. Values not starting with a
// letter get a leading quote so the sheet does not parse them as formulas or numbers
func CellText(s string) string {
	if s == "" {
		return s
	}
	if r, _ := utf8.DecodeRuneInString(s); !unicode.IsLetter(r) {
		return "'" + s
	}
	return s
}

// Row returns the cells of the entry in column order
func Row(e archive.Entry) []interface{} {
	forward := "No"
	if e.Forwarded {
		forward = "Yes"
	}
	return []interface{}{
		e.At.UTC().Format("2006-01-02 15:04:05"),
		string(e.Type),
		CellText(e.Who),
		CellText(e.ToWhom),
		CellText(e.Text),
		CellText(e.Filename),
		forward,
		e.Subject,
	}
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)(?::[A-Z]+\d+)?$`)

// RowOfRange extracts the first row number from an A1 range like "'2024-3'!A5:H5"
func RowOfRange(rng string) (int, error) {
	m := rangeRowRe.FindStringSubmatch(rng)
	if m == nil {
		return 0, fmt.Errorf("unexpected range %q", rng)
	}
	return strconv.Atoi(m[1])
}

func lastColumn() string {
	return string(rune('A' + len(ColumnNames) - 1))
}

func a1(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}
