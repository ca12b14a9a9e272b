package repo

import (
	"context"

	"github.com/mbeoliero/singleton/domain/entity"
)

// TrialRepo 试验记录仓储接口
type TrialRepo interface {
	// Create 保存试验结果
	Create(ctx context.Context, trial *entity.Trial) error

	// FindById 根据ID查询，不存在时返回 nil, nil
	FindById(ctx context.Context, id uint64) (*entity.Trial, error)

	// ListByPolicy 按策略查询最近的试验，按创建时间倒序
	ListByPolicy(ctx context.Context, policy string, limit int) ([]*entity.Trial, error)
}

var trialRepo TrialRepo

func SetTrialRepo(r TrialRepo) {
	trialRepo = r
}

func GetTrialRepo() TrialRepo {
	return trialRepo
}
