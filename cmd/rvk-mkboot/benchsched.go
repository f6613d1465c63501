package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rvkernel/rvk/internal/sched"
)

// newBenchSchedCmd drives internal/sched's work-stealing queues from
// multiple goroutines standing in for harts: one Injector seeded with
// all tasks, N workers each draining their own queue and, once empty,
// stealing half of a sibling's remaining work. Exercises the package
// host-side the way SPEC_FULL.md's §K expansion calls for, without
// needing a running kernel.
func newBenchSchedCmd() *cobra.Command {
	var numWorkers, numTasks int

	cmd := &cobra.Command{
		Use:   "bench-sched",
		Short: "Benchmark the work-stealing scheduler across goroutine-simulated harts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if numWorkers < 1 {
				return fmt.Errorf("rvk-mkboot: --workers must be >= 1")
			}
			if numTasks < 1 {
				return fmt.Errorf("rvk-mkboot: --tasks must be >= 1")
			}

			var completed atomic.Int64

			injector := sched.NewInjector()
			for i := 0; i < numTasks; i++ {
				injector.Push(sched.NewTask(func() { completed.Add(1) }))
			}

			workers := make([]*sched.Worker, numWorkers)
			for i := range workers {
				workers[i] = sched.NewWorker(i)
			}

			start := time.Now()

			if st, err := injector.TrySteal(); err == nil {
				st.SpawnN(workers[0], st.InitialTaskCount())
				st.Release()
			}

			var wg sync.WaitGroup
			for _, w := range workers {
				w := w
				wg.Add(1)
				go func() {
					defer wg.Done()
					runWorkerUntilDry(w, workers)
				}()
			}
			wg.Wait()

			elapsed := time.Since(start)
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d/%d tasks across %d workers in %s\n",
				completed.Load(), numTasks, numWorkers, elapsed)
			return nil
		},
	}

	cmd.Flags().IntVar(&numWorkers, "workers", 4, "number of simulated harts")
	cmd.Flags().IntVar(&numTasks, "tasks", 10000, "number of tasks to schedule")

	return cmd
}

// runWorkerUntilDry drains w's own queue, then tries to steal half of
// each sibling's remaining work in turn, stopping once nothing is left
// anywhere (a fixed number of consecutive empty rounds).
func runWorkerUntilDry(w *sched.Worker, siblings []*sched.Worker) {
	const emptyRoundsBeforeStop = 8
	emptyRounds := 0

	for emptyRounds < emptyRoundsBeforeStop {
		ran := false
		for w.RunOne() {
			ran = true
		}

		for _, victim := range siblings {
			if victim.ID() == w.ID() {
				continue
			}
			st, err := sched.TryStealFrom(victim)
			if err != nil {
				continue
			}
			n := st.SpawnHalf(w)
			st.Release()
			if n > 0 {
				ran = true
			}
		}

		if ran {
			emptyRounds = 0
		} else {
			emptyRounds++
		}
	}
}
