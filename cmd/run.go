package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/event"
	"github.com/char5742/touchbus/internal/features"
	"github.com/char5742/touchbus/internal/poller"
	"github.com/char5742/touchbus/internal/pointer"
	"github.com/char5742/touchbus/internal/toggle"
)

var (
	runMoves bool
	runWire  bool
)

const printTimeout = 200 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "入力を読み取り、届いたイベントを表示する",
	Long: `設定されたタッチパネル、トグル、ダイヤルを周期的に読み取り、
1つのリスナーに届いたイベントを標準出力に表示します。
キャリブレーションがまだなら先に calibrate を実行してください。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runMoves, "moves", false, "押している間の移動も表示する")
	runCmd.Flags().BoolVar(&runWire, "wire", false, "イベントの固定長の表現も表示する")
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context, out io.Writer) error {
	engine := dispatch.New(dispatch.Config{
		Capacity:         cfg.Dispatch.Capacity,
		HaltOnExhaustion: cfg.Dispatch.HaltOnExhaustion,
		Logger:           logger,
	})

	in, err := openInputs(engine, nil)
	if err != nil {
		return err
	}
	defer in.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 外部でキャリブレーションが更新されたら次の読み取りで読み込み直す
	go func() {
		if err := in.store.Watch(ctx, in.pointer.Invalidate); err != nil {
			logger.Warn("キャリブレーションファイルを監視できません", "error", err)
		}
	}()

	// タッチパネルが外されたら終了する
	if monitor, err := features.NewDeviceMonitor(features.ByIDDir, logger); err == nil {
		monitor.RegisterCallback(func(ev features.DeviceEvent) {
			if ev.Type == features.DeviceRemoved && ev.Device.Path == in.touch.Path() {
				logger.Warn("タッチパネルが取り外されました", "path", ev.Device.Path)
				cancel()
			}
		})
		if err := monitor.Start(); err != nil {
			logger.Warn("デバイスモニターを開始できません", "error", err)
		} else {
			defer monitor.Stop()
		}
	}

	l := dispatch.NewListener()
	if err := attachAll(engine, l, in); err != nil {
		return err
	}

	service := poller.NewService(logger)
	if err := service.Add(in.pointer.Source().Name(), in.pointer, cfg.Pointer.PollPeriod); err != nil {
		return err
	}
	if in.toggles != nil {
		if err := service.Add("toggles", in.toggles, cfg.Toggle.PollPeriod); err != nil {
			return err
		}
	}
	if in.dials != nil {
		if err := service.Add("dials", in.dials, cfg.Dial.PollPeriod); err != nil {
			return err
		}
	}
	if err := service.Start(); err != nil {
		return err
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(ctx, out, l)
	}()

	<-ctx.Done()
	_ = service.Stop()
	engine.Detach(l, dispatch.Source{})
	<-printed

	for _, st := range service.Stats() {
		logger.Info("ポーリング統計", "task", st.Name, "polls", st.Polls, "errors", st.Errors)
	}
	return nil
}

// attachAll は l をすべての発生元に割り当てる
func attachAll(engine *dispatch.Engine, l *dispatch.Listener, in *inputs) error {
	flags := pointer.ListenMeta
	if runMoves {
		flags |= pointer.ListenDownMoves
	}
	if err := engine.Attach(l, in.pointer.Source(), flags); err != nil {
		return err
	}
	if in.toggles != nil {
		for i := 0; i < in.toggles.Count(); i++ {
			src, _ := in.toggles.Source(i)
			if err := engine.Attach(l, src, toggle.ListenOn|toggle.ListenOff); err != nil {
				return err
			}
		}
	}
	if in.dials != nil {
		for i := 0; i < in.dials.Count(); i++ {
			src, _ := in.dials.Source(i)
			if err := engine.Attach(l, src, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// printEvents は Exit が届くか ctx が終わるまで l のイベントを表示する
//
// Exit は Wait 中でなければ届かないので、一定時間ごとに ctx も確認する。
func printEvents(ctx context.Context, out io.Writer, l *dispatch.Listener) {
	for {
		ev, ok := l.Wait(printTimeout)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if event.IsExit(ev) {
			return
		}
		line := formatEvent(ev)
		if runWire {
			if w, err := formatWire(ev); err == nil {
				line += " " + w
			}
		}
		fmt.Fprintln(out, line)
	}
}
