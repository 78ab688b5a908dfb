package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/chatwheel/followup/internal/alert"
	"github.com/chatwheel/followup/internal/db"
	"github.com/chatwheel/followup/internal/dispatch"
	"github.com/chatwheel/followup/internal/gateway"
	"github.com/chatwheel/followup/internal/httpapi"
	"github.com/chatwheel/followup/internal/scheduler"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		noGate     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Followup service",
		Long:  "Starts the evaluation tick and the event-intake API. The tick runs on one instance at a time, coordinated through the database tick lock; --no-gate disables the lock for single-instance deployments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, noGate)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "followup.yaml", "path to Followup config file")
	cmd.Flags().BoolVar(&noGate, "no-gate", false, "run the tick unconditionally, without the database lock")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, noGate bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	gw, err := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token)
	if err != nil {
		return err
	}

	var gate scheduler.Gate = &scheduler.DBGate{
		DB:       gormDB,
		HolderID: cfg.Scheduler.RunnerID,
		Timeout:  cfg.HeartbeatTimeout(),
	}
	if noGate {
		gate = scheduler.AlwaysRun{}
	}

	sched := &scheduler.Scheduler{
		DB:         gormDB,
		Dispatcher: &dispatch.Dispatcher{DB: gormDB, Gateway: gw},
		Gate:       gate,
		Sink:       alert.FromConfig(cfg.Alerts),
		Out:        out,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpapi.Start(ctx, httpapi.StartOpts{
			DB:   gormDB,
			Port: cfg.HTTP.Port,
			Out:  out,
		}); err != nil {
			log.Printf("serve: api server: %v", err)
		}
	}()

	if err := sched.Run(ctx, cfg.TickInterval()); err != nil {
		return err
	}

	if dbGate, ok := gate.(*scheduler.DBGate); ok {
		if err := dbGate.Release(); err != nil {
			log.Printf("serve: release tick lock: %v", err)
		}
	}

	fmt.Fprintln(out, "Shut down.")
	return nil
}
