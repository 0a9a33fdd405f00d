// Package export renders the admin bookings workbook.
package export

import (
	"fmt"
	"io"

	"urbanharvest/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Bookings"

// Headers is the column layout shared by the workbook and the mirrored sheet.
var Headers = []string{
	"Booking ID", "Booked At", "Status", "Item Type", "Item ID", "Item",
	"Location", "Quantity", "Total", "Customer", "Email", "Account",
}

// WriteBookings writes views as an xlsx workbook to w.
func WriteBookings(w io.Writer, views []models.BookingView) error {
	f, err := BookingsWorkbook(views)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// BookingsWorkbook builds the workbook in memory. The caller closes it.
func BookingsWorkbook(views []models.BookingView) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	deletedStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Italic: true, Color: "#808080"},
	})

	for i, v := range views {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := RowValues(v)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		if v.Item == nil {
			itemCell, _ := excelize.CoordinatesToCellName(6, row)
			_ = f.SetCellStyle(SheetName, itemCell, itemCell, deletedStyle)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "E", 16)
	_ = f.SetColWidth(SheetName, "F", "G", 30)
	_ = f.SetColWidth(SheetName, "H", "I", 10)
	_ = f.SetColWidth(SheetName, "J", "L", 24)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	return f, nil
}

// RowValues flattens one booking in Headers order.
func RowValues(v models.BookingView) []interface{} {
	return []interface{}{
		v.ID,
		v.BookingDate.Format("2006-01-02 15:04"),
		v.Status,
		string(v.ItemType),
		v.ItemID,
		v.ItemTitle,
		location(v),
		v.Quantity,
		v.TotalPrice.InexactFloat64(),
		v.UserName,
		v.UserEmail,
		account(v),
	}
}

func location(v models.BookingView) string {
	if v.Item == nil {
		return ""
	}
	return v.Item.Location
}

func account(v models.BookingView) string {
	if v.UserID == nil {
		return "guest"
	}
	return fmt.Sprintf("%d", *v.UserID)
}
