// Package pointer はタッチパネルやマウスの読み取り値を中央値フィルタ、
// キャリブレーション、ジェスチャー分類の順に処理し、dispatch エンジンを通じて
// リスナーへ配信する。
package pointer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/char5742/touchbus/internal/dispatch"
	"github.com/char5742/touchbus/internal/event"
)

// リスナーが Attach 時に指定するフラグ
const (
	// ListenMeta は押下・解放・クリックなどのメタイベントを受け取る
	ListenMeta uint32 = 0x0001
	// ListenDownMoves は押されている間の移動を受け取る
	ListenDownMoves uint32 = 0x0002
	// ListenUpMoves は押されていない間の移動を受け取る（報告できるハードウェアのみ）
	ListenUpMoves uint32 = 0x0004
	// ListenNoFilter は揺れの閾値以下の変化も受け取る
	ListenNoFilter uint32 = 0x0008
)

// missedMark は取りこぼしがあったことを Scratch に記録するビット
// 下位16ビットには取りこぼしたメタイベントを保持する
const missedMark uint32 = 1 << 16

// SaveFunc はキャリブレーションデータを保存する
type SaveFunc func(instance int, data []byte) error

// LoadFunc は保存されたキャリブレーションデータを読み込む
// データがなければ nil, nil を返す
type LoadFunc func(instance int) ([]byte, error)

// Config はポインター入力の設定
type Config struct {
	Instance uint16
	// Kind は event.TypeTouch または event.TypeMouse。0 なら TypeTouch
	Kind event.Type
	// Width と Height が正なら座標を画面内に収める
	Width, Height int32
	// SkipCalibration が true ならキャリブレーションせず座標をそのまま使う
	SkipCalibration bool
	Gesture         GestureConfig
	Capture         CaptureConfig
	// Target があれば保存データがないときに対話的にキャリブレーションする
	Target Target
	Clock  func() time.Time
	Logger *slog.Logger
}

// Pointer はサンプラーからの入力をイベントとして配信する発生元
type Pointer struct {
	engine  *dispatch.Engine
	src     dispatch.Source
	sampler Sampler
	cfg     Config
	log     *slog.Logger

	mu         sync.Mutex
	classifier *Classifier
	cal        Calibration
	calReady   bool
	save       SaveFunc
	load       LoadFunc
	status     event.Mouse
}

// New は新しいポインター入力を作成する
func New(engine *dispatch.Engine, sampler Sampler, cfg Config) *Pointer {
	if cfg.Kind == 0 {
		cfg.Kind = event.TypeTouch
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Capture.Logger == nil {
		cfg.Capture.Logger = cfg.Logger
	}

	p := &Pointer{
		engine:     engine,
		src:        dispatch.NewSource(fmt.Sprintf("%s%d", kindName(cfg.Kind), cfg.Instance)),
		sampler:    sampler,
		cfg:        cfg,
		log:        cfg.Logger,
		classifier: NewClassifier(cfg.Gesture),
		cal:        Identity(),
		calReady:   cfg.SkipCalibration,
	}
	p.status = event.Mouse{Kind: cfg.Kind, Instance: cfg.Instance}
	return p
}

func kindName(t event.Type) string {
	if t == event.TypeMouse {
		return "mouse"
	}
	return "touch"
}

// Source は配信に使う発生元を返す
func (p *Pointer) Source() dispatch.Source {
	return p.src
}

// Instance はインスタンス番号を返す
func (p *Pointer) Instance() int {
	return int(p.cfg.Instance)
}

// SetCalibrationHooks はキャリブレーションの保存・読み込み関数を設定する
// 次の読み取りの前に load で読み込み直す
func (p *Pointer) SetCalibrationHooks(save SaveFunc, load LoadFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.save = save
	p.load = load
	if !p.cfg.SkipCalibration {
		p.calReady = false
	}
}

// Invalidate は現在のキャリブレーションを破棄し、次の読み取りの前に読み込み直させる
func (p *Pointer) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.SkipCalibration {
		p.calReady = false
	}
}

// Calibration は現在のキャリブレーションを返す
func (p *Pointer) Calibration() (Calibration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cal, p.calReady
}

// SetCalibration はキャリブレーションを直接設定する
func (p *Pointer) SetCalibration(cal Calibration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cal = cal
	p.calReady = true
}

// Calibrate は対話的にキャリブレーションを取得し、保存関数があれば保存する
func (p *Pointer) Calibrate(ctx context.Context, t Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calibrateLocked(ctx, t)
}

func (p *Pointer) calibrateLocked(ctx context.Context, t Target) error {
	cal, err := Capture(ctx, p.sampler, t, p.cfg.Capture)
	if err != nil {
		return err
	}
	p.cal = cal
	p.calReady = true
	p.classifier.Reset()

	if p.save == nil {
		return nil
	}
	data, err := cal.MarshalBinary()
	if err == nil {
		err = p.save(p.Instance(), data)
	}
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	p.log.Info("キャリブレーションを保存しました", "instance", p.Instance())
	return nil
}

// ensureCalibratedLocked は必要なら保存データを読み込み、なければ対話的に取得する
func (p *Pointer) ensureCalibratedLocked(ctx context.Context) error {
	if p.calReady {
		return nil
	}

	if p.load != nil {
		data, err := p.load(p.Instance())
		if err != nil {
			p.log.Warn("キャリブレーションの読み込みに失敗しました", "instance", p.Instance(), "error", err)
		} else if data != nil {
			var cal Calibration
			if err := cal.UnmarshalBinary(data); err != nil {
				p.log.Warn("保存されたキャリブレーションを使えません", "instance", p.Instance(), "error", err)
			} else {
				p.cal = cal
				p.calReady = true
				return nil
			}
		}
	}

	if p.cfg.Target == nil {
		return ErrNotCalibrated
	}
	return p.calibrateLocked(ctx, p.cfg.Target)
}

// Status は最後に読み取った状態を返す
func (p *Pointer) Status() event.Mouse {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Poll は1回読み取り、変化があれば割り当てられたリスナーへ配信する
func (p *Pointer) Poll() error {
	step, err := p.read()
	if err != nil {
		return err
	}

	r := step.Reading
	down := r.Pressed()
	upMoves := p.sampler.ReportsUpMoves()

	p.engine.Deliver(p.src, func(row *dispatch.Row, buf *event.Event) bool {
		flags := row.Flags()
		missed := row.Scratch()

		// 実質的に動いておらずメタイベントもなければ送らない
		if step.Meta == 0 && missed == 0 && flags&ListenNoFilter == 0 && !step.Moved {
			return false
		}

		if !(down && flags&ListenDownMoves != 0) &&
			!(!down && upMoves && flags&ListenUpMoves != 0) &&
			!(step.Meta != 0 && flags&ListenMeta != 0) {
			return false
		}

		if buf == nil {
			// 次の配信で取りこぼしを知らせる
			row.OrScratch(missedMark | uint32(step.Meta))
			return false
		}

		ev := event.Mouse{
			Kind:        p.cfg.Kind,
			Instance:    p.cfg.Instance,
			X:           r.X,
			Y:           r.Y,
			Z:           r.Z,
			Buttons:     r.Buttons,
			LastButtons: step.LastButtons,
			Meta:        step.Meta,
		}
		if missed != 0 {
			ev.Buttons |= event.ButtonMissed
			ev.Meta |= uint16(missed)
			row.SetScratch(0)
		}
		*buf = ev
		return true
	})

	return nil
}

// read は読み取り、変換、分類を行う。配信中はロックを保持しない
func (p *Pointer) read() (Step, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureCalibratedLocked(context.Background()); err != nil {
		return Step{}, err
	}

	r, err := p.sampler.Reading()
	if err != nil {
		return Step{}, err
	}
	r = p.clip(p.cal.Apply(r))

	step := p.classifier.Step(r, p.cfg.Clock())
	p.status = event.Mouse{
		Kind:        p.cfg.Kind,
		Instance:    p.cfg.Instance,
		X:           r.X,
		Y:           r.Y,
		Z:           r.Z,
		Buttons:     r.Buttons,
		LastButtons: step.LastButtons,
	}
	return step, nil
}

func (p *Pointer) clip(r Reading) Reading {
	if p.cfg.Width > 0 {
		r.X = clamp(r.X, 0, p.cfg.Width-1)
	}
	if p.cfg.Height > 0 {
		r.Y = clamp(r.Y, 0, p.cfg.Height-1)
	}
	return r
}

// clamp は値を最小値と最大値の間に制限する
func clamp(value, min, max int32) int32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Close はこの発生元へのすべての割り当てを解除する
func (p *Pointer) Close() {
	p.engine.DetachSource(p.src)
}
