package main

import (
	"fmt"

	"github.com/char5742/touchbus/internal/calstore"
	"github.com/char5742/touchbus/internal/dial"
	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/features"
	"github.com/char5742/touchbus/internal/pointer"
	"github.com/char5742/touchbus/internal/toggle"
)

// inputs は開いたデバイスと、それを読む発生元
type inputs struct {
	devices map[string]*features.Evdev
	pointer *pointer.Pointer
	touch   *features.Evdev
	store   *calstore.Store
	toggles *toggle.Toggles
	dials   *dial.Dials
}

func (in *inputs) open(path string) (*features.Evdev, error) {
	if dev, ok := in.devices[path]; ok {
		return dev, nil
	}
	dev, err := features.OpenEvdev(path)
	if err != nil {
		return nil, err
	}
	in.devices[path] = dev
	return dev, nil
}

// Close は開いたデバイスをすべて閉じる
func (in *inputs) Close() {
	if in.pointer != nil {
		in.pointer.Close()
	}
	if in.toggles != nil {
		in.toggles.Close()
	}
	if in.dials != nil {
		in.dials.Close()
	}
	for _, dev := range in.devices {
		dev.Close()
	}
}

// touchscreenPath は設定されたタッチパネルのパス、なければ自動検出したパスを返す
func touchscreenPath() (string, error) {
	if cfg.Pointer.Device != "" {
		return cfg.Pointer.Device, nil
	}
	path, err := features.FindTouchscreen()
	if err != nil {
		return "", fmt.Errorf("タッチパネルが見つかりません (pointer.device を設定してください): %w", err)
	}
	return path, nil
}

// openInputs は設定に従ってデバイスを開き、発生元を作成する
func openInputs(engine *dispatch.Engine, target pointer.Target) (*inputs, error) {
	in := &inputs{devices: make(map[string]*features.Evdev)}

	path, err := touchscreenPath()
	if err != nil {
		return nil, err
	}
	touch, err := in.open(path)
	if err != nil {
		return nil, err
	}
	in.touch = touch
	if name, err := touch.Name(); err == nil {
		logger.Info("タッチパネルを開きました", "path", path, "name", name)
	}
	if cfg.Pointer.Grab {
		if err := touch.Grab(); err != nil {
			in.Close()
			return nil, err
		}
	}

	axes := features.SingleTouchAxes
	if cfg.Pointer.MultiTouch {
		axes = features.MultiTouchAxes
	}
	sampler := pointer.NewTouchSampler(features.NewEvdevBus(touch, axes), pointer.SamplerConfig{Samples: cfg.Pointer.Samples})

	in.store, err = calstore.New(cfg.CalibrationPath(configPath), logger)
	if err != nil {
		in.Close()
		return nil, err
	}

	in.pointer = pointer.New(engine, sampler, pointer.Config{
		Width:           cfg.Pointer.Width,
		Height:          cfg.Pointer.Height,
		SkipCalibration: cfg.Calibration.Skip,
		Gesture: pointer.GestureConfig{
			ClickTime:   cfg.Gesture.ClickTime,
			MoveJitter:  cfg.Gesture.MoveJitter,
			ClickJitter: cfg.Gesture.ClickJitter,
		},
		Capture: pointer.CaptureConfig{
			Tolerance: cfg.Calibration.Tolerance,
			Attempts:  cfg.Calibration.Attempts,
		},
		Target: target,
		Logger: logger,
	})
	in.pointer.SetCalibrationHooks(in.store.Save, in.store.Load)

	if len(cfg.Toggle.Keys) > 0 {
		dev := touch
		if cfg.Toggle.Device != "" {
			if dev, err = in.open(cfg.Toggle.Device); err != nil {
				in.Close()
				return nil, err
			}
		}
		codes := make([]uint16, len(cfg.Toggle.Keys))
		for i, k := range cfg.Toggle.Keys {
			codes[i] = uint16(k)
		}
		in.toggles, err = toggle.New(engine, features.NewKeyToggles(dev, codes...), toggle.Config{Count: len(codes), Logger: logger})
		if err != nil {
			in.Close()
			return nil, err
		}
	}

	if len(cfg.Dial.Axes) > 0 {
		dev := touch
		if cfg.Dial.Device != "" {
			if dev, err = in.open(cfg.Dial.Device); err != nil {
				in.Close()
				return nil, err
			}
		}
		axes := make([]uint16, len(cfg.Dial.Axes))
		for i, a := range cfg.Dial.Axes {
			axes[i] = uint16(a)
		}
		reader := features.NewAbsDials(dev, axes...)
		rawMax, err := reader.RawMax(0)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.dials, err = dial.New(engine, reader, dial.Config{Count: len(axes), RawMax: rawMax, Logger: logger})
		if err != nil {
			in.Close()
			return nil, err
		}
		if err := configureDials(in.dials, cfg.Dial.Max, cfg.Dial.Sensitivity); err != nil {
			in.Close()
			return nil, err
		}
	}

	return in, nil
}

// configureDials はすべてのダイヤルに範囲と感度を設定する
func configureDials(d *dial.Dials, max, sensitivity uint16) error {
	for i := 0; i < d.Count(); i++ {
		if err := d.SetRange(i, max); err != nil {
			return fmt.Errorf("dial %d: %w", i, err)
		}
		if err := d.SetSensitivity(i, sensitivity); err != nil {
			return fmt.Errorf("dial %d: %w", i, err)
		}
	}
	return nil
}
