package app

import (
	"context"
	"errors"
	"fmt"

	"cotwatch/internal/service"
	"cotwatch/internal/storage"
)

// SimulateOptions select the instrument to alert on.
type SimulateOptions struct {
	Group      string
	Instrument string
	// NetChange overrides the latest managed-money net change when non-zero.
	NetChange int64
}

// SimulateAlert 基于当前快照中的某个品种模拟一次告警流程，不写入告警记录。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	inst, groupKey, err := findInstrument(snap, opts.Group, opts.Instrument)
	if err != nil {
		return err
	}
	if inst.Summary == nil {
		return fmt.Errorf("instrument %q has no weekly data", opts.Instrument)
	}

	summary := *inst.Summary
	if opts.NetChange != 0 {
		summary.MMNetChange = opts.NetChange
	}
	inst.Summary = &summary

	sim := &storage.Snapshot{
		UpdatedAt: snap.UpdatedAt,
		Groups: map[string]storage.Group{
			groupKey: {
				Kind:        snap.Groups[groupKey].Kind,
				ListKey:     snap.Groups[groupKey].ListKey,
				Instruments: map[string]storage.Instrument{opts.Instrument: inst},
				List:        []storage.InstrumentRef{{Code: opts.Instrument, Name: inst.Name, NameEN: inst.NameEN}},
			},
		},
	}

	svc := service.New(a.Config, nil, service.Providers{}, a.fileStore(), nil, notifier, a.Logger)
	if n := svc.DispatchAlerts(ctx, nil, sim); n == 0 {
		return fmt.Errorf("未达到告警阈值 %.2f%% (net change %d, open interest %d)",
			a.Config.Alerting.ThresholdPct, summary.MMNetChange, summary.OpenInterest)
	}
	a.Logger.Info().Str("group", groupKey).Str("instrument", opts.Instrument).Msg("模拟告警已发送")
	return nil
}
