// Package calstore はタッチパネルのキャリブレーションをインスタンス番号ごとに
// 1つのファイルへ保存する。形式は拡張子で選び、.toml なら TOML、.yaml と .yml なら YAML。
package calstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/char5742/touchbus/internal/pointer"
)

// ErrUnknownFormat は拡張子から形式を決められないときのエラー
var ErrUnknownFormat = errors.New("unknown calibration file format")

type format int

const (
	formatTOML format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return formatTOML, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Entry は1つのインスタンスのキャリブレーション
type Entry struct {
	Instance int   `toml:"instance" yaml:"instance"`
	ScaleX   int64 `toml:"scale_x" yaml:"scale_x"`
	OffsetX  int64 `toml:"offset_x" yaml:"offset_x"`
	ScaleY   int64 `toml:"scale_y" yaml:"scale_y"`
	OffsetY  int64 `toml:"offset_y" yaml:"offset_y"`
}

func (e Entry) calibration() pointer.Calibration {
	return pointer.Calibration{ScaleX: e.ScaleX, OffsetX: e.OffsetX, ScaleY: e.ScaleY, OffsetY: e.OffsetY}
}

type document struct {
	Calibrations []Entry `toml:"calibration" yaml:"calibrations"`
}

// Store はキャリブレーションファイル
type Store struct {
	path   string
	format format
	log    *slog.Logger
	mu     sync.Mutex
}

// New は path を使う Store を作成する。ファイルはまだ無くてもよい
func New(path string, logger *slog.Logger) (*Store, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{path: filepath.Clean(path), format: f, log: logger}, nil
}

// Path はファイルのパスを返す
func (s *Store) Path() string {
	return s.path
}

// Save は instance のキャリブレーションを保存する。pointer.SaveFunc として使える
func (s *Store) Save(instance int, data []byte) error {
	var cal pointer.Calibration
	if err := cal.UnmarshalBinary(data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	e := Entry{Instance: instance, ScaleX: cal.ScaleX, OffsetX: cal.OffsetX, ScaleY: cal.ScaleY, OffsetY: cal.OffsetY}
	i := slices.IndexFunc(doc.Calibrations, func(e Entry) bool { return e.Instance == instance })
	if i >= 0 {
		doc.Calibrations[i] = e
	} else {
		doc.Calibrations = append(doc.Calibrations, e)
	}
	slices.SortFunc(doc.Calibrations, func(a, b Entry) int { return a.Instance - b.Instance })

	if err := s.write(doc); err != nil {
		return err
	}
	s.log.Debug("キャリブレーションを書き込みました", "path", s.path, "instance", instance)
	return nil
}

// Load は instance のキャリブレーションを読み込む。pointer.LoadFunc として使える
//
// ファイルや該当する項目が無ければ nil, nil を返す。
func (s *Store) Load(instance int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, e := range doc.Calibrations {
		if e.Instance == instance {
			return e.calibration().MarshalBinary()
		}
	}
	return nil, nil
}

// Delete は instance のキャリブレーションを削除する
func (s *Store) Delete(instance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	n := len(doc.Calibrations)
	doc.Calibrations = slices.DeleteFunc(doc.Calibrations, func(e Entry) bool { return e.Instance == instance })
	if len(doc.Calibrations) == n {
		return nil
	}
	return s.write(doc)
}

// Entries は保存されているすべてのキャリブレーションを返す
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Calibrations, nil
}

func (s *Store) read() (*document, error) {
	doc := &document{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	switch s.format {
	case formatTOML:
		_, err = toml.Decode(string(data), doc)
	case formatYAML:
		err = yaml.Unmarshal(data, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return doc, nil
}

// write は一時ファイルに書いてから置き換える
func (s *Store) write(doc *document) error {
	var buf bytes.Buffer
	switch s.format {
	case formatTOML:
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return err
		}
	case formatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".calstore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
