package calstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceTime は連続した変更をまとめる時間
const DebounceTime = 200 * time.Millisecond

// Watch はファイルが外部から変更されたら onChange を呼ぶ。ctx が終わるまで戻らない
//
// 置き換えで書き込まれても追えるよう、ファイルではなくディレクトリを監視する。
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}
	s.log.Info("キャリブレーションファイルの監視を開始します", "path", s.path)

	timer := time.NewTimer(DebounceTime)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			s.log.Info("キャリブレーションファイルが変更されました", "path", s.path)
			onChange()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(DebounceTime)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("ファイルシステム監視エラー", "error", err)
		}
	}
}
