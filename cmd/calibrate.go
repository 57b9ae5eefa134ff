package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/pointer"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "タッチパネルのキャリブレーションを行う",
	Long: `画面上の基準点を順に示すので、それぞれの位置をタッチして離してください。
最後に画面中央で検証し、許容誤差を超えたらやり直します。
結果はキャリブレーションファイルに保存されます。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		target := &textTarget{out: out, w: cfg.Pointer.Width, h: cfg.Pointer.Height}
		if target.w <= 0 || target.h <= 0 {
			return fmt.Errorf("pointer.width と pointer.height を設定してください")
		}

		in, err := openInputs(dispatch.New(dispatch.Config{Capacity: 1, Logger: logger}), target)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := in.pointer.Calibrate(ctx, target); err != nil {
			return err
		}
		cal, _ := in.pointer.Calibration()
		fmt.Fprintf(out, "保存しました: %s\n", in.store.Path())
		fmt.Fprintf(out, "x = raw * %.4f + %.1f\n", fixedToFloat(cal.ScaleX), fixedToFloat(cal.OffsetX))
		fmt.Fprintf(out, "y = raw * %.4f + %.1f\n", fixedToFloat(cal.ScaleY), fixedToFloat(cal.OffsetY))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}

// textTarget は基準点を端末に文字で示す
type textTarget struct {
	out  io.Writer
	w, h int32
}

func (t *textTarget) Size() (int32, int32) { return t.w, t.h }

func (t *textTarget) ShowTarget(p pointer.Point) {
	fmt.Fprintf(t.out, "(%d, %d) をタッチしてください\n", p.X, p.Y)
}

func (t *textTarget) ClearTarget(p pointer.Point) {
	fmt.Fprintf(t.out, "(%d, %d) OK\n", p.X, p.Y)
}

// fixedToFloat は16.16固定小数点を浮動小数点に変換する
func fixedToFloat(v int64) float64 {
	return float64(v) / (1 << 16)
}
