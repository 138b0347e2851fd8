// Package report builds downloadable progress workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/trading"
)

const (
	RoadmapSheet   = "Roadmap"
	PortfolioSheet = "Portfolio"
)

// Progress is everything that goes into a learner's export.
type Progress struct {
	LearnerName string
	GeneratedAt time.Time
	Roadmap     []progress.TopicStatus
	Portfolio   trading.Portfolio
}

// WriteWorkbook writes p as an XLSX workbook with a roadmap sheet and a
// portfolio sheet.
func WriteWorkbook(w io.Writer, p Progress) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9EAD3"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", RoadmapSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if err := writeRoadmap(f, header, p); err != nil {
		return err
	}

	if _, err := f.NewSheet(PortfolioSheet); err != nil {
		return fmt.Errorf("creating portfolio sheet: %w", err)
	}
	if err := writePortfolio(f, header, p.Portfolio); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRoadmap(f *excelize.File, header int, p Progress) error {
	rows := [][]any{
		{"Learner", p.LearnerName},
		{"Generated", p.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"ID", "Topic", "State", "Description"},
	}
	completed := 0
	for _, ts := range p.Roadmap {
		rows = append(rows, []any{ts.ID, ts.Name, ts.State.String(), ts.Description})
		if ts.State == progress.Completed {
			completed++
		}
	}
	rows = append(rows, []any{}, []any{"Completed", fmt.Sprintf("%d of %d", completed, len(p.Roadmap))})

	if err := setRows(f, RoadmapSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(RoadmapSheet, "A4", "D4", header); err != nil {
		return fmt.Errorf("styling roadmap header: %w", err)
	}
	if err := f.SetColWidth(RoadmapSheet, "B", "B", 32); err != nil {
		return err
	}
	return f.SetColWidth(RoadmapSheet, "D", "D", 60)
}

func writePortfolio(f *excelize.File, header int, p trading.Portfolio) error {
	rows := [][]any{
		{"Cash", trading.FormatCents(p.CashCents)},
		{},
		{"Symbol", "Shares"},
	}
	for _, h := range p.Lines() {
		rows = append(rows, []any{h.Symbol, h.Shares})
	}

	if err := setRows(f, PortfolioSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(PortfolioSheet, "A3", "B3", header); err != nil {
		return fmt.Errorf("styling portfolio header: %w", err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
