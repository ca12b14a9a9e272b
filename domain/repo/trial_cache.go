package repo

import (
	"context"

	"github.com/mbeoliero/singleton/domain/entity"
)

// TrialCache 每个策略最近一次试验的缓存
type TrialCache interface {
	// SetLatest 覆盖该策略的最近一次试验
	SetLatest(ctx context.Context, trial *entity.Trial) error

	// GetLatest 不存在时返回 nil, nil
	GetLatest(ctx context.Context, policy string) (*entity.Trial, error)
}

var trialCache TrialCache

func SetTrialCache(c TrialCache) {
	trialCache = c
}

func GetTrialCache() TrialCache {
	return trialCache
}
