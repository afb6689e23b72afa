package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/internal/calendar"
	"github.com/wonny/quantsource/internal/contracts"
)

// calendarCmd groups trading calendar commands
var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "거래일 캘린더",
	Long: `거래일 캘린더를 적재합니다.

Example:
  go run ./cmd/quant calendar load --file data/raw/trade_cal.csv`,
}

var calendarLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "거래일 CSV 적재",
	Long: `cal_date / trade_date / date 열 (is_open=0 행 제외) 또는
헤더 없는 한 줄 한 날짜 형식의 CSV 를 적재합니다. 이미 있는 날짜는 무시합니다.`,
	RunE: runCalendarLoad,
}

var calendarFile string

func init() {
	rootCmd.AddCommand(calendarCmd)
	calendarCmd.AddCommand(calendarLoadCmd)

	calendarLoadCmd.Flags().StringVar(&calendarFile, "file", "", "거래일 CSV")
	_ = calendarLoadCmd.MarkFlagRequired("file")
}

func runCalendarLoad(cmd *cobra.Command, args []string) error {
	f, err := os.Open(calendarFile)
	if err != nil {
		return err
	}
	defer f.Close()

	days, err := calendar.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", calendarFile, err)
	}
	if len(days) == 0 {
		PrintWarning("No trading days in file")
		return nil
	}

	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	inserted, err := d.store.AddTradingDays(ctx, days)
	if err != nil {
		return err
	}

	years := map[int]bool{}
	for _, day := range days {
		years[day.Year()] = true
	}
	list := make([]int, 0, len(years))
	for y := range years {
		list = append(list, y)
	}
	if err := d.calendar().Invalidate(ctx, list...); err != nil {
		d.log.WithError(err).Warn("Calendar cache invalidation failed")
	}

	PrintHeader("Calendar Load",
		[2]string{"File", calendarFile},
		[2]string{"Range", contracts.FormatDate(days[0]) + " ~ " + contracts.FormatDate(days[len(days)-1])},
	)
	PrintSuccess(fmt.Sprintf("Loaded %d new trading day(s) of %d", inserted, len(days)))
	return nil
}
