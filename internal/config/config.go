package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/char5742/touchbus/internal/logging"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Dispatch    DispatchConfig    `toml:"dispatch"`
	Pointer     PointerConfig     `toml:"pointer"`
	Gesture     GestureConfig     `toml:"gesture"`
	Calibration CalibrationConfig `toml:"calibration"`
	Toggle      ToggleConfig      `toml:"toggle"`
	Dial        DialConfig        `toml:"dial"`
	Log         LogConfig         `toml:"log"`
}

// DispatchConfig は配信エンジンの設定
type DispatchConfig struct {
	Capacity         int  `toml:"capacity"`
	HaltOnExhaustion bool `toml:"halt_on_exhaustion"`
}

// PointerConfig はタッチパネルの設定
type PointerConfig struct {
	// Device が空ならタッチパネルを自動で探す
	Device     string        `toml:"device"`
	MultiTouch bool          `toml:"multi_touch"`
	Grab       bool          `toml:"grab"`
	Width      int32         `toml:"width"`
	Height     int32         `toml:"height"`
	PollPeriod time.Duration `toml:"poll_period"`
	Samples    int           `toml:"samples"`
}

// GestureConfig はジェスチャー認識の設定
type GestureConfig struct {
	ClickTime   time.Duration `toml:"click_time"`
	MoveJitter  int32         `toml:"move_jitter"`
	ClickJitter int32         `toml:"click_jitter"`
}

// CalibrationConfig はキャリブレーションの設定
type CalibrationConfig struct {
	// File の拡張子で TOML か YAML かが決まる。空なら設定ディレクトリの calibration.toml
	File      string `toml:"file"`
	Skip      bool   `toml:"skip"`
	Tolerance int32  `toml:"tolerance"`
	Attempts  int    `toml:"attempts"`
}

// ToggleConfig はキーをトグルとして読む設定
type ToggleConfig struct {
	Device     string        `toml:"device"`
	Keys       []int         `toml:"keys"`
	PollPeriod time.Duration `toml:"poll_period"`
}

// DialConfig は絶対座標の軸をダイヤルとして読む設定
type DialConfig struct {
	Device      string        `toml:"device"`
	Axes        []int         `toml:"axes"`
	Max         uint16        `toml:"max"`
	Sensitivity uint16        `toml:"sensitivity"`
	PollPeriod  time.Duration `toml:"poll_period"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			Capacity:         32,
			HaltOnExhaustion: false,
		},
		Pointer: PointerConfig{
			Width:      320,
			Height:     240,
			PollPeriod: 20 * time.Millisecond,
			Samples:    7,
		},
		Gesture: GestureConfig{
			ClickTime:   700 * time.Millisecond,
			MoveJitter:  2,
			ClickJitter: 10,
		},
		Calibration: CalibrationConfig{
			Tolerance: 8,
			Attempts:  3,
		},
		Toggle: ToggleConfig{
			PollPeriod: 50 * time.Millisecond,
		},
		Dial: DialConfig{
			Max:         255,
			Sensitivity: 1,
			PollPeriod:  50 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// GetDefaultConfigDir は設定ファイルを置くディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "touchbus"), nil
}

// CalibrationPath はキャリブレーションファイルのパスを返す
//
// 相対パスは設定ファイルのディレクトリからの相対とみなす。
func (c *Config) CalibrationPath(configPath string) string {
	file := c.Calibration.File
	if file == "" {
		file = "calibration.toml"
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(filepath.Dir(configPath), file)
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	var errs []error
	if c.Dispatch.Capacity < 1 {
		errs = append(errs, fmt.Errorf("dispatch.capacity must be at least 1: %d", c.Dispatch.Capacity))
	}
	if c.Pointer.Width < 0 || c.Pointer.Height < 0 {
		errs = append(errs, fmt.Errorf("pointer size must not be negative: %dx%d", c.Pointer.Width, c.Pointer.Height))
	}
	if c.Pointer.PollPeriod <= 0 {
		errs = append(errs, fmt.Errorf("pointer.poll_period must be positive: %v", c.Pointer.PollPeriod))
	}
	if c.Pointer.Samples < 1 {
		errs = append(errs, fmt.Errorf("pointer.samples must be at least 1: %d", c.Pointer.Samples))
	}
	if c.Gesture.MoveJitter < 0 || c.Gesture.ClickJitter < 0 {
		errs = append(errs, errors.New("gesture jitters must not be negative"))
	}
	if c.Calibration.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("calibration.tolerance must be positive: %d", c.Calibration.Tolerance))
	}
	if c.Calibration.Attempts < 1 {
		errs = append(errs, fmt.Errorf("calibration.attempts must be at least 1: %d", c.Calibration.Attempts))
	}
	if len(c.Toggle.Keys) > 32 {
		errs = append(errs, fmt.Errorf("toggle.keys supports at most 32 keys: %d", len(c.Toggle.Keys)))
	}
	if len(c.Toggle.Keys) > 0 && c.Toggle.PollPeriod <= 0 {
		errs = append(errs, fmt.Errorf("toggle.poll_period must be positive: %v", c.Toggle.PollPeriod))
	}
	if len(c.Dial.Axes) > 0 {
		if c.Dial.PollPeriod <= 0 {
			errs = append(errs, fmt.Errorf("dial.poll_period must be positive: %v", c.Dial.PollPeriod))
		}
		if c.Dial.Max == 0 || c.Dial.Sensitivity == 0 {
			errs = append(errs, errors.New("dial.max and dial.sensitivity must be positive"))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	// 設定ファイルの読み込み
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// TOML形式でエンコードして書き込み
	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
