package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelpest/fieldsync/internal/bus"
	"github.com/sentinelpest/fieldsync/internal/domain"
	"github.com/sentinelpest/fieldsync/internal/service"
)

func newEnqueuePlacementCmd() *cobra.Command {
	var (
		code string
		site int64
		typ  int64
		desc string
	)

	cmd := &cobra.Command{
		Use:   "enqueue-placement",
		Short: "Queue a new inspection point recorded in the field",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.cleanup()

			p, err := a.service.EnqueuePlacement(cmd.Context(), service.PlacementInput{
				NaturalKey:  code,
				SiteID:      site,
				TypeID:      typ,
				Description: desc,
			})
			if err != nil {
				return err
			}
			fmt.Printf("queued placement %d (code %s)\n", p.LocalID, p.NaturalKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "scanned marker code (required)")
	cmd.Flags().Int64Var(&site, "site", 0, "server id of the site (required)")
	cmd.Flags().Int64Var(&typ, "type", 0, "server id of the placement type (required)")
	cmd.Flags().StringVar(&desc, "desc", "", "free-text description")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newEnqueueObservationCmd() *cobra.Command {
	var (
		target    int64
		local     bool
		status    string
		note      string
		photoPath string
	)

	cmd := &cobra.Command{
		Use:   "enqueue-observation",
		Short: "Queue an inspection outcome against a placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.cleanup()

			in := service.ObservationInput{
				TargetID:      target,
				TargetIsLocal: local,
				Status:        status,
				Note:          note,
			}
			if photoPath != "" {
				data, err := os.ReadFile(photoPath)
				if err != nil {
					return fmt.Errorf("failed to read photo: %w", err)
				}
				in.Photo = data
				in.PhotoMime = "image/jpeg"
			}

			o, err := a.service.EnqueueObservation(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("queued observation %d (target %d)\n", o.LocalID, o.TargetID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&target, "target", 0, "placement id the observation belongs to (required)")
	cmd.Flags().BoolVar(&local, "local-target", false, "target is the local id of a placement still queued on this device")
	cmd.Flags().StringVar(&status, "status", "", "outcome status, e.g. clean, activity, damaged (required)")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to a photo to attach")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.cleanup()

			// One synchronous probe so the monitor reflects reality before
			// the run decides whether to attempt anything.
			a.prober.Probe(cmd.Context())

			unsubscribe := a.events.Subscribe(printProgress)
			defer unsubscribe()

			out, err := a.engine.Run(cmd.Context())
			if err != nil {
				return err
			}
			printOutcome(out)
			if failed := out.PlacementsFailed + out.ObservationsFailed; failed > 0 {
				return fmt.Errorf("%d items did not sync", failed)
			}
			if !out.Offline && !out.Skipped {
				refreshOpportunistically(cmd.Context(), a)
			}
			return nil
		},
	}
	return cmd
}

func newPendingCmd() *cobra.Command {
	var dead bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show queued record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.cleanup()

			if dead {
				return printDeadLetters(cmd, a)
			}

			counts, err := a.service.PendingCounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("placements pending:   %d\n", counts.Placements)
			fmt.Printf("observations pending: %d\n", counts.Observations)
			if counts.DeadPlacements > 0 || counts.DeadObservations > 0 {
				fmt.Printf("needing attention:    %d placements, %d observations (see --dead)\n",
					counts.DeadPlacements, counts.DeadObservations)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dead, "dead", false, "list items that exhausted their retry budget")
	return cmd
}

func printDeadLetters(cmd *cobra.Command, a *app) error {
	placements, observations, err := a.service.DeadLetters(cmd.Context())
	if err != nil {
		return err
	}
	if len(placements) == 0 && len(observations) == 0 {
		fmt.Println("no items need attention")
		return nil
	}
	for _, p := range placements {
		fmt.Printf("placement %d code=%s attempts=%d error=%s\n", p.LocalID, p.NaturalKey, p.Attempts, p.LastError)
	}
	for _, o := range observations {
		fmt.Printf("observation %d target=%d attempts=%d error=%s\n", o.LocalID, o.TargetID, o.Attempts, o.LastError)
	}
	return nil
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve CODE",
		Short: "Look a scanned code up without a network round trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.cleanup()

			res, err := a.service.ResolveCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case res.Pending:
				fmt.Printf("queued on this device: local id %d (%s)\n", res.LocalID, res.Name)
			case res.Known:
				fmt.Printf("known placement: server id %d (%s)\n", res.ServerID, res.Name)
			default:
				fmt.Println("unknown code")
			}
			return nil
		},
	}
	return cmd
}

func newRefreshCmd() *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the local mirror of server catalogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.cleanup()

			a.prober.Probe(cmd.Context())
			return a.service.RefreshReferences(cmd.Context(), kinds...)
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", []string{domain.RefSite, domain.RefPlacementType, domain.RefPlacement},
		"catalog kinds to refresh")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing: on reachability transitions and on a timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			unsubscribe := a.events.Subscribe(printProgress)
			defer unsubscribe()

			runOnce := func(trigger string) {
				out, err := a.engine.Run(ctx)
				if err != nil {
					a.logger.Error("sync run failed", "trigger", trigger, "error", err)
					return
				}
				if !out.Skipped && !out.Offline {
					printOutcome(out)
					if out.PlacementsFailed+out.ObservationsFailed == 0 {
						refreshOpportunistically(ctx, a)
					}
				}
			}

			// Became-reachable transitions and the periodic timer both
			// funnel into the same single-flight entry point.
			unsubMonitor := a.monitor.Subscribe(func(reachable bool) {
				if reachable {
					runOnce("reachable")
				}
			})
			defer unsubMonitor()

			go a.prober.Run(ctx)

			ticker := time.NewTicker(a.cfg.SyncInterval)
			defer ticker.Stop()

			fmt.Println("watching; Ctrl-C to stop")
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					runOnce("timer")
				}
			}
		},
	}
	return cmd
}

// refreshOpportunistically pulls fresh catalogs after a fully successful run
// while the device is still reachable. A failure here never fails the sync
// itself; the stale mirror keeps working.
func refreshOpportunistically(ctx context.Context, a *app) {
	kinds := []string{domain.RefSite, domain.RefPlacementType, domain.RefPlacement}
	if err := a.service.RefreshReferences(ctx, kinds...); err != nil {
		a.logger.Warn("reference refresh failed", "error", err)
	}
}

func printProgress(ev bus.Event) {
	switch ev.Kind {
	case bus.EventItemSynced:
		fmt.Printf("  synced %s %d -> server %d\n", ev.Record, ev.LocalID, ev.ServerID)
	case bus.EventItemFailed:
		fmt.Printf("  failed %s %d: %v\n", ev.Record, ev.LocalID, ev.Err)
	case bus.EventOffline:
		fmt.Println("offline; nothing attempted")
	}
}

func printOutcome(out *domain.Outcome) {
	if out.Offline {
		return
	}
	fmt.Printf("placements: %d synced, %d failed; observations: %d synced, %d failed, %d dropped\n",
		out.PlacementsSynced, out.PlacementsFailed,
		out.ObservationsSynced, out.ObservationsFailed, out.ObservationsDropped)
}
