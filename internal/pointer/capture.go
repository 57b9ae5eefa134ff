package pointer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Target はキャリブレーション中に基準点を利用者に示す表示側の協力者
type Target interface {
	// Size は画面の幅と高さを返す
	Size() (w, h int32)
	// ShowTarget は基準点を表示する
	ShowTarget(p Point)
	// ClearTarget は基準点の表示を消す
	ClearTarget(p Point)
}

// キャプチャの既定値
const (
	DefaultTolerance    = 8
	DefaultAttempts     = 3
	DefaultPollInterval = 25 * time.Millisecond
)

// CaptureConfig はキャリブレーション取得の設定
type CaptureConfig struct {
	// Tolerance は検証点の許容誤差（画素）
	Tolerance int32
	// Attempts は検証に失敗したときの試行回数の上限
	Attempts int
	// PollInterval はサンプラーを読む間隔
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// ReferencePoints はキャリブレーションに使う2つの基準点と検証点を返す
func ReferencePoints(w, h int32) (ref [2]Point, check Point) {
	ref[0] = Point{X: w / 4, Y: h / 4}
	ref[1] = Point{X: w - w/4, Y: h - h/4}
	check = Point{X: w / 2, Y: h / 2}
	return ref, check
}

// Capture は利用者に基準点を押してもらいキャリブレーションを求める
//
// 2つの基準点から軸ごとの変換を求め、3つ目の点で検証する。
// 検証に Attempts 回失敗すると ErrCalibrationFailed を返す。
func Capture(ctx context.Context, s Sampler, t Target, cfg CaptureConfig) (Calibration, error) {
	cfg = cfg.withDefaults()
	ref, check := ReferencePoints(t.Size())

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		var raw [2]Point
		for i, p := range ref {
			r, err := capturePoint(ctx, s, t, p, cfg.PollInterval)
			if err != nil {
				return Calibration{}, err
			}
			raw[i] = r
		}

		cal, err := Fit(ref, raw)
		if err == nil {
			var r Point
			r, err = capturePoint(ctx, s, t, check, cfg.PollInterval)
			if err != nil {
				return Calibration{}, err
			}
			err = cal.Validate(r, check, cfg.Tolerance)
		}
		if err == nil {
			cfg.Logger.Info("キャリブレーションが完了しました", "attempt", attempt)
			return cal, nil
		}

		cfg.Logger.Warn("キャリブレーションをやり直します", "attempt", attempt, "error", err)
		lastErr = err
	}

	return Calibration{}, fmt.Errorf("%w after %d attempts: %v", ErrCalibrationFailed, cfg.Attempts, lastErr)
}

// capturePoint は基準点を表示し、押されてから離されるまでの最後の位置を返す
func capturePoint(ctx context.Context, s Sampler, t Target, p Point, interval time.Duration) (Point, error) {
	t.ShowTarget(p)
	defer t.ClearTarget(p)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last    Point
		pressed bool
	)
	for {
		r, err := s.Reading()
		if err != nil {
			return Point{}, fmt.Errorf("failed to read calibration point: %w", err)
		}
		if r.Pressed() {
			last = Point{X: r.X, Y: r.Y}
			pressed = true
		} else if pressed {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return Point{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
