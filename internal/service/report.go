package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"voyagr/internal/models"
	"voyagr/internal/status"

	"github.com/xuri/excelize/v2"
)

// Report buckets every booking by current status and aggregates transition
// latency per "<from>_to_<to>" label across all histories. Pure read side:
// no mutation, bookings with fewer than two history entries contribute
// nothing to the latency stats.
func (m *StatusManager) Report(ctx context.Context) (*models.StatusReport, error) {
	bookings, err := m.repo.ListBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for report: %w", err)
	}

	report := &models.StatusReport{
		GeneratedAt: time.Now(),
		Total:       len(bookings),
		Counts:      make(map[string]int),
		Transitions: make(map[string]models.TransitionStats),
	}

	type acc struct {
		sum   time.Duration
		count int
	}
	latencies := make(map[string]*acc)

	for _, b := range bookings {
		report.Counts[b.Status]++

		for i := 1; i < len(b.StatusHistory); i++ {
			prev, cur := b.StatusHistory[i-1], b.StatusHistory[i]
			label := prev.ToStatus + "_to_" + cur.ToStatus
			a, ok := latencies[label]
			if !ok {
				a = &acc{}
				latencies[label] = a
			}
			a.sum += cur.Timestamp.Sub(prev.Timestamp)
			a.count++
		}
	}

	for label, a := range latencies {
		report.Transitions[label] = models.TransitionStats{
			Average: a.sum / time.Duration(a.count),
			Count:   a.count,
		}
	}

	return report, nil
}

// ExportReport writes the status report to an Excel file under dir and
// returns the file path.
func (m *StatusManager) ExportReport(ctx context.Context, dir string) (string, error) {
	report, err := m.Report(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const statusSheet = "Statuses"
	index, err := f.NewSheet(statusSheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(statusSheet, "A1", "Status")
	_ = f.SetCellValue(statusSheet, "B1", "Label")
	_ = f.SetCellValue(statusSheet, "C1", "Bookings")

	row := 2
	for _, def := range status.Catalog() {
		_ = f.SetCellValue(statusSheet, fmt.Sprintf("A%d", row), def.Code)
		_ = f.SetCellValue(statusSheet, fmt.Sprintf("B%d", row), def.Label)
		_ = f.SetCellValue(statusSheet, fmt.Sprintf("C%d", row), report.Counts[def.Code])
		row++
	}
	_ = f.SetColWidth(statusSheet, "A", "B", 22)

	const transitionSheet = "Transitions"
	if _, err := f.NewSheet(transitionSheet); err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	_ = f.SetCellValue(transitionSheet, "A1", "Transition")
	_ = f.SetCellValue(transitionSheet, "B1", "Count")
	_ = f.SetCellValue(transitionSheet, "C1", "Average")

	labels := make([]string, 0, len(report.Transitions))
	for label := range report.Transitions {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	row = 2
	for _, label := range labels {
		stats := report.Transitions[label]
		_ = f.SetCellValue(transitionSheet, fmt.Sprintf("A%d", row), label)
		_ = f.SetCellValue(transitionSheet, fmt.Sprintf("B%d", row), stats.Count)
		_ = f.SetCellValue(transitionSheet, fmt.Sprintf("C%d", row), stats.Average.String())
		row++
	}
	_ = f.SetColWidth(transitionSheet, "A", "A", 34)

	// Убираем дефолтный лист
	_ = f.DeleteSheet("Sheet1")

	path := filepath.Join(dir, fmt.Sprintf("status_report_%s.xlsx", report.GeneratedAt.Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}
