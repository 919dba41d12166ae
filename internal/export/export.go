// Package export renders report datasets as CSV or Excel files.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Formats
const (
	CSV  = "csv"
	XLSX = "xlsx"
)

// Table is a named grid of cells with a header row
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Filename is the download name for the table in format
func (t Table) Filename(format string) string {
	return strings.ToLower(t.Name) + "." + format
}

// ContentType is the MIME type of format
func ContentType(format string) string {
	if format == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	return writer.Error()
}

// WriteXLSX writes the table as a single-sheet workbook with a bold header
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, header := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	if len(t.Headers) > 0 {
		last, err := excelize.ColumnNumberToName(len(t.Headers))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, "A", last, 15); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// Write renders t in format
func Write(w io.Writer, format string, t Table) error {
	if format == XLSX {
		return WriteXLSX(w, t)
	}
	return WriteCSV(w, t)
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// OrdersTable lists orders with customer and agent loaded
func OrdersTable(orders []models.Order) Table {
	t := Table{
		Name: "Orders",
		Headers: []string{"Reference", "Status", "Customer", "Phone", "City", "Agent", "Currency",
			"Subtotal", "Shipping", "Discount", "Total", "Created At", "Delivered At"},
		Rows: make([][]string, 0, len(orders)),
	}
	for _, o := range orders {
		agent := ""
		if o.Agent != nil {
			agent = o.Agent.Name
		}
		created := o.CreatedAt
		t.Rows = append(t.Rows, []string{
			o.Reference, string(o.Status), o.Customer.Name, o.Customer.Phone, o.Customer.City, agent, o.Currency,
			amount(o.Subtotal), amount(o.ShippingFee), amount(o.Discount), amount(o.Total),
			stamp(&created), stamp(o.DeliveredAt),
		})
	}
	return t
}

func ExpensesTable(expenses []models.Expense) Table {
	t := Table{
		Name:    "Expenses",
		Headers: []string{"ID", "Category", "Amount", "Currency", "Spent At", "Product ID", "Description"},
		Rows:    make([][]string, 0, len(expenses)),
	}
	for _, e := range expenses {
		product := ""
		if e.ProductID != nil {
			product = strconv.FormatUint(uint64(*e.ProductID), 10)
		}
		spent := e.SpentAt
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(uint64(e.ID), 10), e.Category, amount(e.Amount), e.Currency,
			stamp(&spent), product, e.Description,
		})
	}
	return t
}

// SummaryTable lays a period comparison out one metric per row
func SummaryTable(c finance.Comparison) Table {
	cur, prev, ch := c.Current, c.Previous, c.Changes
	count := func(n int64) string { return strconv.FormatInt(n, 10) }
	row := func(metric, current, previous string, change decimal.Decimal) []string {
		return []string{metric, current, previous, change.StringFixed(2)}
	}
	return Table{
		Name:    "Summary",
		Headers: []string{"Metric (" + string(cur.Currency) + ")", "Current", "Previous", "Change %"},
		Rows: [][]string{
			row("Revenue", amount(cur.Revenue), amount(prev.Revenue), ch.Revenue),
			row("COGS", amount(cur.COGS), amount(prev.COGS), ch.COGS),
			row("Expenses", amount(cur.Expenses), amount(prev.Expenses), ch.Expenses),
			row("Ad spend", amount(cur.AdSpend), amount(prev.AdSpend), ch.AdSpend),
			row("Gross profit", amount(cur.GrossProfit), amount(prev.GrossProfit), ch.GrossProfit),
			row("Net profit", amount(cur.NetProfit), amount(prev.NetProfit), ch.NetProfit),
			row("ROAS", amount(cur.ROAS), amount(prev.ROAS), ch.ROAS),
			row("Orders created", count(cur.OrdersCreated), count(prev.OrdersCreated), ch.OrdersCreated),
			row("Delivered", count(cur.Delivered), count(prev.Delivered), ch.Delivered),
			row("Returned", count(cur.Returned), count(prev.Returned), ch.Returned),
			row("Average order value", amount(cur.AverageOrderValue), amount(prev.AverageOrderValue), ch.AverageOrderValue),
		},
	}
}
