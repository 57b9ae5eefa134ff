package dispatch

// Source はイベントの発生元を識別する不透明なハンドル
//
// ゼロ値はワイルドカード（すべての発生元）を表す。
type Source struct {
	h *sourceHandle
}

type sourceHandle struct {
	name string
}

// NewSource は新しい発生元を作成する
// 同じ name で作成しても別の発生元として扱われる
func NewSource(name string) Source {
	return Source{h: &sourceHandle{name: name}}
}

// IsWildcard はゼロ値（ワイルドカード）かを返す
func (s Source) IsWildcard() bool {
	return s.h == nil
}

// Name は発生元の名前を返す
func (s Source) Name() string {
	if s.h == nil {
		return "*"
	}
	return s.h.name
}

func (s Source) String() string {
	return s.Name()
}
