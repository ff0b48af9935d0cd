package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uvci/resto/app/providers"
	"github.com/uvci/resto/pkg/container"
	"github.com/uvci/resto/pkg/schedule"
)

var queueWorkersFlag int

// resto queue:work
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Start the queue workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		workers := queueWorkersFlag
		if workers < 1 {
			workers = 5
		}
		return boot(ctx, func(a *providers.App) error {
			if err := a.StartWorkers(ctx, workers); err != nil {
				return err
			}
			fmt.Printf("Queue worker started (%d workers). Press Ctrl+C to stop.\n", workers)
			<-ctx.Done()
			a.Wait()
			fmt.Println("Queue worker stopped.")
			return nil
		})
	},
}

// resto schedule:run
var scheduleRunCmd = &cobra.Command{
	Use:   "schedule:run",
	Short: "Start the task scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		return boot(ctx, func(a *providers.App) error {
			s, err := container.Make[*schedule.Scheduler](a.C, providers.KeyScheduler)
			if err != nil {
				return err
			}
			fmt.Println("Registered scheduled tasks:")
			for _, t := range s.List() {
				fmt.Println("  •", t)
			}
			fmt.Println("Scheduler started. Press Ctrl+C to stop.")
			s.Start(ctx)
			<-ctx.Done()
			s.Wait()
			fmt.Println("Scheduler stopped.")
			return nil
		})
	},
}

func init() {
	queueWorkCmd.Flags().IntVarP(&queueWorkersFlag, "workers", "w", 5, "Number of concurrent workers")
}
