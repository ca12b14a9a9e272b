package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/repo"
	"github.com/mbeoliero/singleton/pkg/generic"
)

type trialRepo struct {
	db *gorm.DB
}

var getTrialRepo = generic.Once(func() repo.TrialRepo {
	return &trialRepo{db: GetDB()}
})

func (r *trialRepo) Create(ctx context.Context, trial *entity.Trial) error {
	return gorm.G[entity.Trial](r.db).Create(ctx, trial)
}

func (r *trialRepo) FindById(ctx context.Context, id uint64) (*entity.Trial, error) {
	trial, err := gorm.G[*entity.Trial](r.db).Where("id = ?", id).First(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return trial, err
}

func (r *trialRepo) ListByPolicy(ctx context.Context, policy string, limit int) ([]*entity.Trial, error) {
	return gorm.G[*entity.Trial](r.db).
		Where(entity.FieldPolicy+" = ?", policy).
		Order(entity.FieldCreatedAt + " DESC").
		Limit(limit).
		Find(ctx)
}
