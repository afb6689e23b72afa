package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/ingest"
	"github.com/wonny/quantsource/internal/scheduler/jobs"
	"github.com/wonny/quantsource/pkg/redis"
)

// adjustCmd groups the adjustment pipeline commands
var adjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "수정계수 / 주봉·월봉 롤업",
	Long: `일봉을 적재하고 권리락 감지, 수정계수, 주봉/월봉 롤업을 갱신합니다.

Subcommands:
  run      - 일봉 파일 처리 (일 단위 증분)
  rebuild  - 저장된 일봉으로 전체 재계산

Example:
  go run ./cmd/quant adjust run --date 2024-01-04
  go run ./cmd/quant adjust run --file data/raw/daily/20240104.csv.zst
  go run ./cmd/quant adjust rebuild --instrument 600000.SH`,
}

var (
	adjustRunCmd = &cobra.Command{
		Use:   "run",
		Short: "일봉 파일 처리",
		Long: `원천 일봉 CSV 를 읽어 조정 파이프라인을 실행합니다.

--file 이 없으면 RAW_DIR/daily/YYYYMMDD.csv[.zst] 를 읽습니다.
--date 없이 --file 만 주면 파일의 모든 거래일을 날짜 순서대로 처리합니다 (백필).`,
		RunE: runAdjust,
	}

	adjustRebuildCmd = &cobra.Command{
		Use:   "rebuild",
		Short: "전체 재계산",
		Long: `저장된 일봉으로 수정계수와 주봉/월봉을 처음부터 다시 계산합니다.
--instrument 가 없으면 모든 종목을 재계산합니다.`,
		RunE: runRebuild,
	}
)

var (
	adjustDate        string
	adjustFile        string
	adjustInstruments []string
)

func init() {
	rootCmd.AddCommand(adjustCmd)
	adjustCmd.AddCommand(adjustRunCmd)
	adjustCmd.AddCommand(adjustRebuildCmd)

	adjustRunCmd.Flags().StringVar(&adjustDate, "date", "", "거래일 (YYYY-MM-DD 또는 YYYYMMDD)")
	adjustRunCmd.Flags().StringVar(&adjustFile, "file", "", "원천 일봉 CSV (.zst 지원)")
	adjustRebuildCmd.Flags().StringSliceVar(&adjustInstruments, "instrument", nil, "재계산할 종목 (반복 가능)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAdjust(cmd *cobra.Command, args []string) error {
	if adjustDate == "" && adjustFile == "" {
		return fmt.Errorf("--date or --file is required")
	}

	var date time.Time
	if adjustDate != "" {
		d, err := contracts.ParseDate(adjustDate)
		if err != nil {
			return err
		}
		date = d
	}

	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	path := adjustFile
	if path == "" {
		if path, err = jobs.RawDailyPath(d.cfg.Export.RawDir, date); err != nil {
			return err
		}
	}

	bars, stats, err := ingest.NewDailyReader(d.log).ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	PrintHeader("Adjust Run",
		[2]string{"File", path},
		[2]string{"Rows", fmt.Sprintf("%d (%d bars, %d skipped)", stats.Rows, stats.Bars, stats.Skipped)},
	)

	dates, byDate := ingest.GroupByDate(bars)
	if !date.IsZero() {
		dates = []time.Time{date}
	}

	engine := d.engine()
	exporter, err := d.exporter(ctx, "", d.cfg.ClickHouse.Enabled)
	if err != nil {
		return err
	}
	if exporter != nil {
		defer exporter.Close()
	}

	failed := 0
	for _, day := range dates {
		summary, err := engine.Run(ctx, day, byDate[day])
		if err != nil {
			return fmt.Errorf("adjust %s: %w", contracts.FormatDate(day), err)
		}
		PrintRunSummary(summary)
		failed += len(summary.Failed())

		touched := summary.Succeeded()
		for _, inst := range touched {
			_ = d.cache.Delete(ctx, redis.InstrumentKeys(inst)...)
		}
		if exporter != nil && len(touched) > 0 {
			if _, err := exporter.Export(ctx, touched, []string{}); err != nil {
				PrintWarning(fmt.Sprintf("ClickHouse export failed: %v", err))
			}
		}
	}

	fmt.Println()
	if failed > 0 {
		PrintWarning(fmt.Sprintf("%d instrument run(s) failed; they are retried with the next delta", failed))
		return nil
	}
	PrintSuccess(fmt.Sprintf("Processed %d trading day(s)", len(dates)))
	return nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	target := "all"
	if len(adjustInstruments) > 0 {
		target = fmt.Sprint(adjustInstruments)
	}
	PrintHeader("Adjust Rebuild", [2]string{"Instruments", target})

	summary, err := d.engine().Rebuild(ctx, adjustInstruments...)
	if err != nil {
		return err
	}
	PrintRunSummary(summary)

	for _, inst := range summary.Succeeded() {
		_ = d.cache.Delete(ctx, redis.InstrumentKeys(inst)...)
	}

	fmt.Println()
	if n := len(summary.Failed()); n > 0 {
		return fmt.Errorf("%d instrument(s) failed to rebuild", n)
	}
	PrintSuccess(fmt.Sprintf("Rebuilt %d instrument(s)", len(summary.Succeeded())))
	return nil
}
