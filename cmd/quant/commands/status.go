package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/internal/contracts"
)

// statusCmd shows recent adjustment runs
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "최근 조정 실행 결과",
	Long: `최근 조정 실행 결과 (결과 분포, 권리락, 실패 종목) 를 표시합니다.

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --limit 20 --failed`,
	RunE: runStatus,
}

var (
	statusLimit  int
	statusFailed bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "표시할 실행 수")
	statusCmd.Flags().BoolVar(&statusFailed, "failed", false, "실패 종목 상세 표시")
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runs, err := d.store.RecentRuns(ctx, statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		PrintInfo("No runs recorded yet")
		return nil
	}

	fmt.Println("📊 Recent Runs")
	widths := []int{36, 10, 8, 6, 6, 7, 6, 4}
	PrintTableHeader([]string{"Run ID", "Date", "Duration", "Seed", "Incr", "Rebuilt", "Failed", "CA"}, widths)
	for i := range runs {
		s := &runs[i]
		PrintTableRow([]string{
			s.RunID,
			contracts.FormatDate(s.Date),
			s.Duration().Round(time.Millisecond).String(),
			fmt.Sprint(s.Count(contracts.OutcomeSeeded)),
			fmt.Sprint(s.Count(contracts.OutcomeIncremental)),
			fmt.Sprint(s.Count(contracts.OutcomeRebuilt)),
			fmt.Sprint(s.Count(contracts.OutcomeFailed)),
			fmt.Sprint(len(s.CorporateActions())),
		}, widths)
	}

	if statusFailed {
		for i := range runs {
			if len(runs[i].Failed()) > 0 {
				PrintRunSummary(&runs[i])
			}
		}
	}
	return nil
}
