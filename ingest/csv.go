// Package ingest parses CSV inventory uploads into lots.
//
// Uploads are partial-accept: rows that fail validation are collected with
// their row numbers while good rows are still imported. The resulting Report
// is persisted alongside the lots so warehouse staff can fix and re-upload
// only the rejected rows.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/inventory"
)

// ExpectedHeader is the required column order for inventory uploads.
var ExpectedHeader = []string{
	"sku", "description", "category", "quantity", "unit",
	"unit_price", "batch_code", "warehouse_id", "expiry_date",
}

const dateLayout = "2006-01-02"

// RowError describes a rejected CSV row. Row numbers are 1-based and count
// the header, matching what the uploader sees in a spreadsheet.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Report summarizes one upload.
type Report struct {
	RowsTotal    int        `json:"rows_total"`
	RowsAccepted int        `json:"rows_accepted"`
	RowsRejected int        `json:"rows_rejected"`
	Errors       []RowError `json:"errors,omitempty"`
}

// Parser parses inventory CSV uploads.
type Parser struct {
	// Now is the reference time for expiry validation. Defaults to time.Now.
	Now func() time.Time
}

// NewParser creates a parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

// Parse reads the upload and returns the accepted lots plus a report.
// It fails outright only on malformed CSV or a bad header; row-level
// problems are reported, not fatal.
func (p *Parser) Parse(r io.Reader) ([]*inventory.Lot, *Report, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // ragged rows become row errors, not a failed upload

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, nil, fmt.Errorf("upload must have a header and at least one data row")
	}

	if !validateHeader(records[0], ExpectedHeader) {
		return nil, nil, fmt.Errorf("header mismatch: expected %v, got %v", ExpectedHeader, records[0])
	}

	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	report := &Report{RowsTotal: len(records) - 1}
	var lots []*inventory.Lot

	for i, record := range records[1:] {
		rowNum := i + 2 // 1-based, counting the header

		if len(record) != len(ExpectedHeader) {
			report.reject(rowNum, fmt.Sprintf("expected %d columns, got %d", len(ExpectedHeader), len(record)))
			continue
		}

		lot, err := parseLot(record, now)
		if err != nil {
			report.reject(rowNum, err.Error())
			continue
		}

		lots = append(lots, lot)
		report.RowsAccepted++
	}

	return lots, report, nil
}

func (r *Report) reject(row int, msg string) {
	r.RowsRejected++
	r.Errors = append(r.Errors, RowError{Row: row, Message: msg})
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i, col := range expected {
		if strings.ToLower(strings.TrimSpace(actual[i])) != col {
			return false
		}
	}
	return true
}

func parseLot(record []string, now time.Time) (*inventory.Lot, error) {
	quantity, err := decimal.NewFromString(strings.TrimSpace(record[3]))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %s", record[3])
	}

	unitPrice, err := decimal.NewFromString(strings.TrimSpace(record[5]))
	if err != nil {
		return nil, fmt.Errorf("invalid unit_price: %s", record[5])
	}

	expiry, err := time.Parse(dateLayout, strings.TrimSpace(record[8]))
	if err != nil {
		return nil, fmt.Errorf("invalid expiry_date: %s (expected YYYY-MM-DD)", record[8])
	}

	lot := &inventory.Lot{
		SKU:         strings.TrimSpace(record[0]),
		Description: strings.TrimSpace(record[1]),
		Category:    strings.ToLower(strings.TrimSpace(record[2])),
		Quantity:    quantity,
		Unit:        strings.TrimSpace(record[4]),
		UnitPrice:   unitPrice,
		BatchCode:   strings.TrimSpace(record[6]),
		WarehouseID: strings.TrimSpace(record[7]),
		ExpiryDate:  expiry,
		ReceivedAt:  now,
		Status:      inventory.StatusAvailable,
	}

	if err := lot.Validate(); err != nil {
		return nil, err
	}

	// A lot that arrives already expired goes straight to the expired
	// state; it must never enter matching.
	if lot.ShelfLifeDays(now) < 0 {
		lot.Status = inventory.StatusExpired
	}

	return lot, nil
}
