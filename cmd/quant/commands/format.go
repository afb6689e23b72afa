package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/splice"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string, fields ...[2]string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
	for _, f := range fields {
		fmt.Printf("  %-10s: %s\n", f[0], f[1])
	}
	if len(fields) > 0 {
		PrintSeparator()
	}
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintRunSummary prints the outcome of one adjustment run
func PrintRunSummary(s *contracts.RunSummary) {
	fmt.Println()
	PrintKeyValue("Run ID", s.RunID, 12)
	PrintKeyValue("Date", contracts.FormatDate(s.Date), 12)
	PrintKeyValue("Duration", s.Duration().Round(time.Millisecond).String(), 12)
	PrintKeyValue("Seeded", fmt.Sprint(s.Count(contracts.OutcomeSeeded)), 12)
	PrintKeyValue("Incremental", fmt.Sprint(s.Count(contracts.OutcomeIncremental)), 12)
	PrintKeyValue("Rebuilt", fmt.Sprint(s.Count(contracts.OutcomeRebuilt)), 12)
	PrintKeyValue("Failed", fmt.Sprint(s.Count(contracts.OutcomeFailed)), 12)

	if actions := s.CorporateActions(); len(actions) > 0 {
		fmt.Printf("\n   권리락 감지 (%d):\n", len(actions))
		for _, inst := range actions {
			fmt.Printf("   • %s\n", inst)
		}
	}

	if failed := s.Failed(); len(failed) > 0 {
		fmt.Println()
		widths := []int{12, 9, 50}
		PrintTableHeader([]string{"Instrument", "Retryable", "Error"}, widths)
		for _, r := range failed {
			PrintTableRow([]string{r.Instrument, fmt.Sprint(r.Retryable), r.Error}, widths)
		}
	}
}

// PrintSpliceSummary prints the outcome of one splice batch
func PrintSpliceSummary(s *splice.Summary) {
	fmt.Println()
	widths := []int{16, 7, 6, 10, 30}
	PrintTableHeader([]string{"Symbol", "Points", "Rolls", "Offset", "Error"}, widths)
	for _, r := range s.Results {
		PrintTableRow([]string{
			r.Symbol,
			fmt.Sprint(r.Points),
			fmt.Sprint(len(r.Rolls)),
			fmt.Sprintf("%g", r.Offset),
			r.Error,
		}, widths)
	}
}
