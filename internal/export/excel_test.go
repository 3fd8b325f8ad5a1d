package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

func sampleInterview() models.InterviewRecord {
	return models.InterviewRecord{
		ID:            "int-1",
		Role:          "Backend Engineer",
		Level:         "Senior",
		Type:          "Technical",
		TechStack:     []string{"Go", "Postgres"},
		QuestionCount: 3,
		Shape:         models.ShapeRoster,
		Candidates: []models.Candidate{
			{Email: "a@x.com", Completed: true},
			{Email: "b@x.com", Completed: true},
			{Email: "c@x.com"},
		},
	}
}

func sampleFeedback() []models.FeedbackRecord {
	scores := make([]models.CategoryScore, 0, 5)
	for _, name := range models.CategoryNames {
		scores = append(scores, models.CategoryScore{Name: name, Score: 80, Comment: "ok"})
	}
	return []models.FeedbackRecord{
		{
			ID:             "fb-1",
			CandidateEmail: "a@x.com",
			Evaluation: models.Evaluation{
				TotalScore:      80,
				CategoryScores:  scores,
				Strengths:       []string{"Clear"},
				FinalAssessment: "Good",
			},
		},
		{
			ID:             "fb-2",
			CandidateEmail: "b@x.com",
			SystemError:    true,
			Evaluation:     models.Evaluation{FinalAssessment: "A technical error occurred"},
		},
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(sampleInterview(), sampleFeedback())
	if stats.Invited != 3 || stats.Completed != 2 {
		t.Errorf("Unexpected counts: %+v", stats)
	}
	if stats.Scored != 1 || stats.Degraded != 1 {
		t.Errorf("Fallback records should be counted separately: %+v", stats)
	}
	if stats.AverageScore != 80 || stats.HighestScore != 80 || stats.LowestScore != 80 {
		t.Errorf("Unexpected scores: %+v", stats)
	}
}

func TestComputeStatsLegacyRecord(t *testing.T) {
	rec := models.InterviewRecord{Shape: models.ShapeLegacySingle, Completed: true}
	if stats := ComputeStats(rec, nil); stats.Completed != 1 {
		t.Errorf("Completed legacy record should count once, got %d", stats.Completed)
	}
}

// TestWriteFeedbackReport tests the workbook's sheets and labelled rows
func TestWriteFeedbackReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFeedbackReport(&buf, sampleInterview(), sampleFeedback(), time.Now()); err != nil {
		t.Fatalf("WriteFeedbackReport() failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	expected := []string{SummarySheet, CandidatesSheet, DetailsSheet}
	if len(sheets) != len(expected) {
		t.Fatalf("Expected sheets %v, got %v", expected, sheets)
	}
	for i, name := range expected {
		if sheets[i] != name {
			t.Errorf("Sheet %d = %q, want %q", i, sheets[i], name)
		}
	}

	tests := []struct {
		cell string
		want string
	}{
		{"A2", "a@x.com"},
		{"B2", "80.00"},
		{"H2", "Scored"},
		{"B3", systemErrorLabel},
		{"H4", "Pending"},
	}
	for _, tt := range tests {
		got, err := f.GetCellValue(CandidatesSheet, tt.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s) failed: %v", tt.cell, err)
		}
		if got != tt.want {
			t.Errorf("Candidates!%s = %q, want %q", tt.cell, got, tt.want)
		}
	}

	name, _ := f.GetCellValue(DetailsSheet, "A2")
	if name != "a@x.com" {
		t.Errorf("Details!A2 = %q", name)
	}
}

// TestExportToFile_EnsuresXlsxExtension tests that .xlsx extension is added if missing
func TestExportToFile_EnsuresXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "test_report")
	if err := ExportToFile(sampleInterview(), sampleFeedback(), outputPath); err != nil {
		t.Fatalf("ExportToFile() failed: %v", err)
	}

	expectedPath := outputPath + ".xlsx"
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", expectedPath)
	}
}

// TestExportToFile_EmptyFeedback tests that an interview without feedback still exports
func TestExportToFile_EmptyFeedback(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "empty.xlsx")
	if err := ExportToFile(models.InterviewRecord{ID: "int-2"}, nil, outputPath); err != nil {
		t.Fatalf("ExportToFile() failed: %v", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Errorf("Expected file at %s: %v", outputPath, err)
	}
}
