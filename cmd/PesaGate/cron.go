package main

import (
	"context"
	"time"

	"PesaGate/internal/biz"
	"PesaGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

const defaultReconcileInterval = 5 * time.Minute

// StartReconcileCron runs the pending-transaction reconciliation on
// the configured interval. Providers settle mobile money payments
// asynchronously, so callbacks that never arrive are recovered here.
func StartReconcileCron(bc *conf.Bootstrap, task *biz.ReconcileTask, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	interval := defaultReconcileInterval
	if bc.Gateway != nil && bc.Gateway.ReconcileInterval != nil {
		if d := bc.Gateway.ReconcileInterval.AsDuration(); d > 0 {
			interval = d
		}
	}

	c := cron.New()

	_, err := c.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		if err := task.ReconcilePending(ctx); err != nil {
			helper.Errorw("msg", "reconciliation run failed", "error", err)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register reconcile cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Infow("msg", "reconcile cron started", "interval", interval.String())

	return c
}
