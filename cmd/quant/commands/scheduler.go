package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/internal/scheduler"
	"github.com/wonny/quantsource/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행
  status  - 작업 실행 상태 조회

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run daily_adjust`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- daily_adjust: 평일 20:30 (일봉 적재 → 수정계수 → 주봉/월봉, 휴장일은 건너뜀)
- future_splice: 토요일 22:00 (연속선물 누적 롤 차익)

실패한 작업은 SCHEDULER_MAX_RETRIES (기본 0) 만큼만 재시도합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 스케줄 조회",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Quant Source Scheduler ===")

	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}

	return nil
}

// runJob runs a job in the foreground (프로세스 종료 전에 완료 대기)
func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := sched.RunJobNow(ctx, jobName)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration))
	return nil
}

// showStatus prints schedules and next fire times.
// 실행 이력은 프로세스 메모리에만 있으므로 조정 실행 결과는 "quant status" 로 조회
func showStatus(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	sched.Start()
	defer sched.Stop()

	fmt.Println("Job Schedules:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		stat := sched.GetJobStats()[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		if stat.NextRun != nil {
			fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}

	return nil
}

func initScheduler() (*scheduler.Scheduler, *deps, error) {
	d, err := setup()
	if err != nil {
		return nil, nil, err
	}

	var exporter jobs.Exporter
	if d.cfg.ClickHouse.Enabled {
		ex, err := d.exporter(context.Background(), "", true)
		if err != nil {
			d.Close()
			return nil, nil, err
		}
		exporter = ex
	}

	runner, err := d.spliceRunner()
	if err != nil {
		d.Close()
		return nil, nil, err
	}

	sched := scheduler.New(d.cfg.Scheduler, d.log)

	for _, job := range []scheduler.Job{
		jobs.NewDailyAdjustJob(d.engine(), d.calendar(), exporter, d.cache, d.cfg.Export.RawDir, d.log),
		jobs.NewFutureSpliceJob(runner, exporter, d.cache, d.log),
	} {
		if err := sched.AddJob(job); err != nil {
			d.Close()
			return nil, nil, err
		}
	}

	return sched, d, nil
}
