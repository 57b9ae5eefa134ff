package pointer

import "slices"

// Median7 は7つのサンプルの中央値（4番目に小さい値）を返す
// 入力をすべて比較して並べ替え、中央の要素を取る
func Median7(s [7]int32) int32 {
	for i := 0; i < len(s)-1; i++ {
		for j := i + 1; j < len(s); j++ {
			if s[i] > s[j] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
	return s[3]
}

// Median は任意個のサンプルの中央値を返す
// 偶数個の場合は中央の2つのうち小さい方。空なら0
func Median(s []int32) int32 {
	if len(s) == 0 {
		return 0
	}
	if len(s) == 7 {
		return Median7([7]int32(s))
	}
	sorted := slices.Clone(s)
	slices.Sort(sorted)
	return sorted[(len(sorted)-1)/2]
}
