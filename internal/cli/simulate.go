package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"cotwatch/internal/app"
)

var (
	simulateGroup      string
	simulateInstrument string
	simulateNetChange  int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次持仓异动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateInstrument == "" {
			return errors.New("--instrument 必须提供")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Group:      simulateGroup,
			Instrument: simulateInstrument,
			NetChange:  simulateNetChange,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateGroup, "group", "", "品种所属分组")
	simulateCmd.Flags().StringVar(&simulateInstrument, "instrument", "", "品种代码，例如 gold")
	simulateCmd.Flags().Int64Var(&simulateNetChange, "net-change", 0, "覆盖最新一周的基金净持仓变化（手）")
}
