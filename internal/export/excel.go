// Package export renders interview feedback as an Excel workbook
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// Sheet names of the feedback report
const (
	SummarySheet    = "Summary"
	CandidatesSheet = "Candidates"
	DetailsSheet    = "Detailed Feedback"
)

const systemErrorLabel = "System error"

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// WriteFeedbackReport writes the workbook for one interview to w
func WriteFeedbackReport(w io.Writer, rec models.InterviewRecord, feedback []models.FeedbackRecord, generated time.Time) error {
	f, err := buildReport(rec, feedback, generated)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel report: %w", err)
	}
	return nil
}

// ExportToFile saves the workbook at outputPath, adding .xlsx if missing
func ExportToFile(rec models.InterviewRecord, feedback []models.FeedbackRecord, outputPath string) error {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteFeedbackReport(out, rec, feedback, time.Now()); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func buildReport(rec models.InterviewRecord, feedback []models.FeedbackRecord, generated time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetSheetName("Sheet1", SummarySheet)
	f.NewSheet(CandidatesSheet)
	f.NewSheet(DetailsSheet)

	if err := createSummarySheet(f, SummarySheet, rec, feedback, generated); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := createCandidatesSheet(f, CandidatesSheet, rec, feedback); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create candidates sheet: %w", err)
	}
	if err := createDetailsSheet(f, DetailsSheet, feedback); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create detailed feedback sheet: %w", err)
	}
	return f, nil
}

// Stats summarizes an interview's feedback records
type Stats struct {
	Invited      int
	Completed    int
	Scored       int
	Degraded     int
	AverageScore float64
	HighestScore float64
	LowestScore  float64
}

// ComputeStats counts candidates and averages the genuine scores.
// Fallback records are counted as degraded and left out of the averages.
func ComputeStats(rec models.InterviewRecord, feedback []models.FeedbackRecord) Stats {
	s := Stats{Invited: len(rec.Candidates), Completed: rec.CompletedCount()}
	if rec.Shape == models.ShapeLegacySingle && rec.Completed && s.Completed == 0 {
		s.Completed = 1
	}

	var total float64
	for _, fb := range feedback {
		if fb.SystemError {
			s.Degraded++
			continue
		}
		if s.Scored == 0 || fb.TotalScore > s.HighestScore {
			s.HighestScore = fb.TotalScore
		}
		if s.Scored == 0 || fb.TotalScore < s.LowestScore {
			s.LowestScore = fb.TotalScore
		}
		s.Scored++
		total += fb.TotalScore
	}
	if s.Scored > 0 {
		s.AverageScore = total / float64(s.Scored)
	}
	return s
}

// createSummarySheet creates the summary sheet with interview details and statistics
func createSummarySheet(f *excelize.File, sheetName string, rec models.InterviewRecord, feedback []models.FeedbackRecord, generated time.Time) error {
	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 50)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	section := func(title string) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), title)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
		f.MergeCell(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
		row++
	}
	line := func(label string, value interface{}) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), label)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), value)
		row++
	}

	section("Interview Feedback Report")
	row++
	line("Role:", rec.Role)
	line("Level:", rec.Level)
	line("Type:", rec.Type)
	line("Tech Stack:", strings.Join(rec.TechStack, ", "))
	line("Questions:", rec.QuestionCount)
	line("Generated:", generated.Format("2006-01-02 15:04:05"))
	row++

	stats := ComputeStats(rec, feedback)
	section("Statistics:")
	line("Candidates Invited:", stats.Invited)
	line("Candidates Completed:", stats.Completed)
	line("Feedback Records:", len(feedback))
	line("System Errors:", stats.Degraded)
	if stats.Scored > 0 {
		line("Average Score:", fmt.Sprintf("%.2f", stats.AverageScore))
		line("Highest Score:", fmt.Sprintf("%.2f", stats.HighestScore))
		line("Lowest Score:", fmt.Sprintf("%.2f", stats.LowestScore))
	}
	return nil
}

// createCandidatesSheet lists every invited candidate with their scores, color-coded by total
func createCandidatesSheet(f *excelize.File, sheetName string, rec models.InterviewRecord, feedback []models.FeedbackRecord) error {
	f.SetColWidth(sheetName, "A", "A", 30)
	f.SetColWidth(sheetName, "B", "G", 15)
	f.SetColWidth(sheetName, "H", "H", 18)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	bands := map[string]int{}
	for _, band := range []struct{ name, color string }{
		{"excellent", "C6EFCE"},
		{"good", "FFEB9C"},
		{"fair", "FFC7CE"},
		{"poor", "FF9999"},
		{"none", "FFFFFF"},
		{"error", "D9D9D9"},
	} {
		style, err := f.NewStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{band.color}, Pattern: 1},
			Border: thinBorder,
		})
		if err != nil {
			return err
		}
		bands[band.name] = style
	}

	headers := []string{"Candidate", "Total Score"}
	headers = append(headers, models.CategoryNames[:]...)
	headers = append(headers, "Status")
	for col, header := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	latest := latestByEmail(feedback)
	rows := rec.Candidates
	if len(rows) == 0 {
		for _, fb := range feedback {
			rows = append(rows, models.Candidate{Email: fb.CandidateEmail})
		}
	}

	for i, c := range rows {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), displayEmail(c.Email))

		fb, ok := latest[c.Email]
		band := "none"
		switch {
		case !ok:
			status := "Pending"
			if c.Completed {
				status = "Completed, no feedback"
			}
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), status)
		case fb.SystemError:
			band = "error"
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), systemErrorLabel)
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), systemErrorLabel)
		default:
			band = scoreBand(fb.TotalScore)
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("%.2f", fb.TotalScore))
			for j, cs := range fb.CategoryScores {
				if j >= len(models.CategoryNames) {
					break
				}
				f.SetCellValue(sheetName, fmt.Sprintf("%s%d", string(rune('C'+j)), row), fmt.Sprintf("%.2f", cs.Score))
			}
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), "Scored")
		}
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), bands[band])
	}

	if len(rows) > 0 {
		f.AutoFilter(sheetName, fmt.Sprintf("A1:H%d", len(rows)+1), []excelize.AutoFilterOptions{})
	}
	freezeHeader(f, sheetName)
	return nil
}

// createDetailsSheet writes strengths, improvements and the final assessment per record
func createDetailsSheet(f *excelize.File, sheetName string, feedback []models.FeedbackRecord) error {
	f.SetColWidth(sheetName, "A", "A", 30)
	f.SetColWidth(sheetName, "B", "B", 22)
	f.SetColWidth(sheetName, "C", "C", 80)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	for col, header := range []string{"Candidate", "Section", "Feedback"} {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	row := 2
	for _, fb := range feedback {
		name := displayEmail(fb.CandidateEmail)
		if fb.SystemError {
			name += " (" + systemErrorLabel + ")"
		}
		sections := []struct{ label, text string }{
			{"Strengths", bulletList(fb.Strengths)},
			{"Areas for Improvement", bulletList(fb.AreasForImprovement)},
			{"Final Assessment", fb.FinalAssessment},
		}
		for _, cs := range fb.CategoryScores {
			sections = append(sections, struct{ label, text string }{cs.Name, cs.Comment})
		}
		for _, s := range sections {
			f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), name)
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), s.label)
			f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), s.text)
			f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), wrapStyle)
			f.SetRowHeight(sheetName, row, 45)
			row++
		}
	}

	freezeHeader(f, sheetName)
	return nil
}

func freezeHeader(f *excelize.File, sheetName string) {
	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// latestByEmail keeps the newest record per candidate email
func latestByEmail(feedback []models.FeedbackRecord) map[string]models.FeedbackRecord {
	out := make(map[string]models.FeedbackRecord, len(feedback))
	for _, fb := range feedback {
		if prev, ok := out[fb.CandidateEmail]; ok && prev.CreatedAt.After(fb.CreatedAt) {
			continue
		}
		out[fb.CandidateEmail] = fb
	}
	return out
}

func scoreBand(score float64) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, s := range items {
		lines[i] = "• " + s
	}
	return strings.Join(lines, "\n")
}

func displayEmail(email string) string {
	if email == "" {
		return "(unknown)"
	}
	return email
}
