package season

import "huddle/internal/config"

// PhaseOf 由配置的赛季长度重推阶段边界。冠军赛起始周优先于比例划分。
func PhaseOf(period int, cfg config.SeasonConfig) Phase {
	length := cfg.Length
	if length <= 0 {
		length = 17
	}
	champStart := cfg.ChampionshipStart
	if champStart <= 0 || champStart > length {
		champStart = length - 2
	}
	switch {
	case period >= champStart:
		return PhaseChampionship
	case period <= (length+3)/4:
		return PhaseEarly
	case period <= length*3/5:
		return PhaseMid
	default:
		return PhaseLate
	}
}
