// Package poller は入力源を一定の周期で読み取るサービス
package poller

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Poller は1回の読み取りと配信を行う
type Poller interface {
	Poll() error
}

// Func は関数を Poller として使うための型
type Func func() error

// Poll は f を呼ぶ
func (f Func) Poll() error { return f() }

var (
	// ErrRunning は実行中に変更しようとしたときのエラー
	ErrRunning = errors.New("poller service is already running")
	// ErrNotRunning は停止中に停止しようとしたときのエラー
	ErrNotRunning = errors.New("poller service is not running")
)

type task struct {
	name   string
	poller Poller
	period time.Duration

	polls   atomic.Uint64
	errors  atomic.Uint64
	failing bool
}

// Stats は1つのタスクの統計
type Stats struct {
	Name   string
	Period time.Duration
	Polls  uint64
	Errors uint64
}

// Service は登録された Poller を周期ごとに1つのゴルーチンで実行する
type Service struct {
	log *slog.Logger

	statusMutex sync.RWMutex
	tasks       []*task
	stopChan    chan struct{}
	wg          sync.WaitGroup
	running     bool
}

// NewService は新しいサービスを作成する
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{log: logger}
}

// Add は p を period ごとに実行するよう登録する。実行中は登録できない
func (s *Service) Add(name string, p Poller, period time.Duration) error {
	if p == nil || period <= 0 {
		return fmt.Errorf("invalid poller %q: period %v", name, period)
	}

	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return ErrRunning
	}
	s.tasks = append(s.tasks, &task{name: name, poller: p, period: period})
	return nil
}

// Start はすべての周期のゴルーチンを開始する
func (s *Service) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return ErrRunning
	}

	// 同じ周期のタスクは登録順に同じゴルーチンで実行する
	groups := make(map[time.Duration][]*task)
	var periods []time.Duration
	for _, t := range s.tasks {
		if _, ok := groups[t.period]; !ok {
			periods = append(periods, t.period)
		}
		groups[t.period] = append(groups[t.period], t)
	}
	slices.Sort(periods)

	s.stopChan = make(chan struct{})
	s.running = true
	for _, period := range periods {
		s.wg.Add(1)
		go s.runLoop(period, groups[period], s.stopChan)
	}
	s.log.Info("ポーリングを開始しました", "tasks", len(s.tasks), "loops", len(periods))
	return nil
}

// Stop はすべてのゴルーチンを停止し、終了を待つ
func (s *Service) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return ErrNotRunning
	}
	close(s.stopChan)
	s.running = false
	s.statusMutex.Unlock()

	s.wg.Wait()
	s.log.Info("ポーリングを停止しました")
	return nil
}

// IsRunning はサービスが実行中かどうかを返す
func (s *Service) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Stats は登録順にタスクの統計を返す
func (s *Service) Stats() []Stats {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	stats := make([]Stats, 0, len(s.tasks))
	for _, t := range s.tasks {
		stats = append(stats, Stats{
			Name:   t.name,
			Period: t.period,
			Polls:  t.polls.Load(),
			Errors: t.errors.Load(),
		})
	}
	return stats
}

func (s *Service) runLoop(period time.Duration, tasks []*task, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, t := range tasks {
				s.poll(t)
			}
		}
	}
}

// poll は1回実行する。エラーは失敗し始めたときと回復したときだけログに出す
func (s *Service) poll(t *task) {
	t.polls.Add(1)
	err := t.poller.Poll()
	if err != nil {
		t.errors.Add(1)
		if !t.failing {
			s.log.Error("読み取りに失敗しました", "task", t.name, "error", err)
		}
		t.failing = true
		return
	}
	if t.failing {
		s.log.Info("読み取りが回復しました", "task", t.name)
		t.failing = false
	}
}
