package pointer

import "errors"

var (
	// ErrDegenerate は2つの基準点の生の座標が同じでスケールを求められない
	ErrDegenerate = errors.New("reference points are degenerate")
	// ErrCalibrationFailed はキャリブレーション結果が許容誤差を超えた
	ErrCalibrationFailed = errors.New("calibration failed")
	// ErrNotCalibrated はキャリブレーションが読み込めず、取得する手段もない
	ErrNotCalibrated = errors.New("pointer is not calibrated")
	// ErrBadCalibrationData は保存されたキャリブレーションデータが壊れている
	ErrBadCalibrationData = errors.New("malformed calibration data")
)
