package experiment

import "math"

// twoProportionZ 合并比例的双样本 z 检验统计量。
// 任何会导致除零的退化输入返回 0。
func twoProportionZ(a, b Sample) float64 {
	n1, n2 := float64(a.Total), float64(b.Total)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	p1 := a.SuccessRate()
	p2 := b.SuccessRate()
	pooled := (float64(a.Successes) + float64(b.Successes)) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return 0
	}
	return (p2 - p1) / se
}

// twoTailedConfidence 双尾置信水平：2*Phi(|z|)-1。
func twoTailedConfidence(z float64) float64 {
	phi := 0.5 * (1 + math.Erf(math.Abs(z)/math.Sqrt2))
	conf := 2*phi - 1
	if conf < 0 {
		return 0
	}
	return conf
}
