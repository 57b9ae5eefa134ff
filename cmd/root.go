package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/char5742/touchbus/internal/config"
	"github.com/char5742/touchbus/internal/logging"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "touchbus",
	Short: "タッチパネルやキー、ダイヤルの入力をイベントとして配信する",
	Long: `touchbus は evdev のタッチパネルを中央値フィルタとキャリブレーションを通して読み取り、
押下・解放・クリックなどのイベントとしてリスナーへ配信します。

  - run        入力を読み取り、届いたイベントを表示する
  - calibrate  タッチパネルのキャリブレーションを行う
  - config     現在の設定を表示する`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
}

// loadConfig は設定ファイルを読み込み、ロガーを用意する
func loadConfig() error {
	if configPath == "" {
		dir, err := config.GetDefaultConfigDir()
		if err != nil {
			return fmt.Errorf("設定ディレクトリが見つかりません: %w", err)
		}
		configPath = filepath.Join(dir, "config.toml")
	}

	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	logger.Debug("設定ファイルを読み込みました", "path", configPath)
	return nil
}
