package season

import (
	"github.com/markcheno/go-talib"
)

// Trend 对周度成功率/准确率序列做 SMA 平滑，返回逐周趋势点。
// 记录数不足窗口时平滑值等于原值。
func Trend(records []Record, window int) []TrendPoint {
	if len(records) == 0 {
		return nil
	}
	if window <= 1 {
		window = 3
	}
	success := make([]float64, len(records))
	accuracy := make([]float64, len(records))
	for i, r := range records {
		success[i] = r.Summary.SuccessRate
		accuracy[i] = r.Summary.AverageAccuracy
	}
	smoothSuccess := success
	smoothAccuracy := accuracy
	if len(records) >= window {
		smoothSuccess = talib.Sma(success, window)
		smoothAccuracy = talib.Ema(accuracy, window)
	}
	out := make([]TrendPoint, len(records))
	for i, r := range records {
		out[i] = TrendPoint{
			Period:           r.Period,
			SuccessRate:      success[i],
			SmoothedSuccess:  pickSmoothed(smoothSuccess, success, i, window),
			AverageAccuracy:  accuracy[i],
			SmoothedAccuracy: pickSmoothed(smoothAccuracy, accuracy, i, window),
		}
	}
	return out
}

// pickSmoothed talib 在窗口未满的前几个点给 0，这里回退到原值。
func pickSmoothed(smoothed, raw []float64, i, window int) float64 {
	if i < window-1 || i >= len(smoothed) {
		return raw[i]
	}
	return smoothed[i]
}
