package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fleetops/dispatchd/core/orchestrator"
	"github.com/fleetops/dispatchd/infra/logger"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single dispatch cycle and exit",
	RunE:  runCycle,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("cycle").Errorf("service close: %v", err)
		}
	}()

	go svc.Orchestrator.Run(ctx)
	commands := svc.Orchestrator.Commands()
	commands <- orchestrator.Command{Name: orchestrator.CmdInitialize}
	commands <- orchestrator.Command{Name: orchestrator.CmdRunCycle}

	var cycleErr error
	for ev := range svc.Orchestrator.Events() {
		switch ev.Name {
		case orchestrator.EvtCycleComplete:
			printCycleSummary(ev.Result)
			commands <- orchestrator.Command{Name: orchestrator.CmdShutdown}
		case orchestrator.EvtCycleError:
			fmt.Printf("%s cycle failed: %s\n", color.New(color.FgRed).Sprint("✗"), ev.Error)
			cycleErr = fmt.Errorf("cycle failed: %s", ev.Error)
			commands <- orchestrator.Command{Name: orchestrator.CmdShutdown}
		}
	}
	return cycleErr
}

func printCycleSummary(res *orchestrator.CycleResult) {
	if res == nil {
		return
	}
	fmt.Printf("%s cycle complete in %dms\n",
		color.New(color.FgGreen).Sprint("✓"), res.DurationMs)
	fmt.Printf("  planned:   %d\n", res.ActionsPlanned)
	fmt.Printf("  executed:  %d\n", res.ActionsExecuted)
	if res.ActionsEscalated > 0 {
		fmt.Printf("  escalated: %s\n",
			color.New(color.FgYellow).Sprintf("%d", res.ActionsEscalated))
	} else {
		fmt.Printf("  escalated: %d\n", res.ActionsEscalated)
	}
}
