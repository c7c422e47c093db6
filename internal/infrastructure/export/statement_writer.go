// Package export renders pay statements as spreadsheets.
package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

const (
	sheetName = "Statement"
	xlsxType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// rows 1-3 carry the driver and week, the ticket table starts at row 5
	headerRow = 5
)

var columns = []struct {
	title string
	width float64
}{
	{"Ticket #", 16},
	{"Date", 12},
	{"Customer", 24},
	{"Material", 18},
	{"Quantity", 10},
	{"Unit", 8},
	{"Pay Method", 12},
	{"Status", 12},
	{"Pay", 12},
}

// XLSXWriter implements port.StatementWriter with excelize
type XLSXWriter struct {
	logger *zap.Logger
}

// NewXLSXWriter creates a new statement writer
func NewXLSXWriter(logger *zap.Logger) *XLSXWriter {
	return &XLSXWriter{logger: logger}
}

// ContentType returns the xlsx MIME type
func (w *XLSXWriter) ContentType() string {
	return xlsxType
}

// Write renders the statement into an in-memory workbook
func (w *XLSXWriter) Write(ctx context.Context, s *port.Statement) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("statement is nil")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	boldMoney, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	driver := s.DriverName
	if driver == "" {
		driver = s.DriverID
	}
	w.setRow(f, 1, []interface{}{"Driver", driver})
	w.setRow(f, 2, []interface{}{"Week Start", s.WeekStart})
	w.setRow(f, 3, []interface{}{"Week End", s.WeekEnd})
	if err := f.SetCellStyle(sheetName, "A1", "A3", bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	titles := make([]interface{}, len(columns))
	for i, c := range columns {
		titles[i] = c.title
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, c.width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	w.setRow(f, headerRow, titles)
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetCellStyle(sheetName, cell("A", headerRow), cell(lastCol, headerRow), bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	row := headerRow
	for _, line := range s.Lines {
		row++
		w.setRow(f, row, lineValues(line))
	}
	if row > headerRow {
		if err := f.SetCellStyle(sheetName, cell(lastCol, headerRow+1), cell(lastCol, row), money); err != nil {
			return nil, fmt.Errorf("failed to style pay column: %w", err)
		}
	}

	totalRow := row + 1
	w.setRow(f, totalRow, []interface{}{"Total"})
	if err := f.SetCellValue(sheetName, cell(lastCol, totalRow), s.Total); err != nil {
		return nil, fmt.Errorf("failed to write total: %w", err)
	}
	if err := f.SetCellStyle(sheetName, cell("A", totalRow), cell(lastCol, totalRow), boldMoney); err != nil {
		return nil, fmt.Errorf("failed to style total: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Info("Pay statement rendered",
		zap.String("driver_id", s.DriverID),
		zap.String("week_start", s.WeekStart),
		zap.Int("lines", len(s.Lines)))
	return buf.Bytes(), nil
}

func (w *XLSXWriter) setRow(f *excelize.File, row int, values []interface{}) {
	if err := f.SetSheetRow(sheetName, cell("A", row), &values); err != nil {
		w.logger.Warn("Failed to set row values",
			zap.Int("row", row),
			zap.Error(err))
	}
}

func lineValues(line port.StatementLine) []interface{} {
	t := line.Ticket
	if t == nil {
		t = &entity.Ticket{}
	}
	date := t.PickupDate
	if date == "" && !t.CreatedAt.IsZero() {
		date = t.CreatedAt.Format("2006-01-02")
	}
	quantity := t.QuantityFinal
	if quantity == nil {
		quantity = t.Quantity
	}
	var q interface{} = ""
	if quantity != nil {
		q = *quantity
	}
	return []interface{}{
		t.TicketNumber,
		date,
		t.CustomerName,
		t.Material,
		q,
		t.Unit,
		t.PayMethod,
		t.Status,
		line.Pay,
	}
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// Verify interface compliance
var _ port.StatementWriter = (*XLSXWriter)(nil)
