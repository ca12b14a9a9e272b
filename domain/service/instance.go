package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/pkg/id_gen"
	"github.com/mbeoliero/singleton/pkg/log"
)

// InstanceFactory builds entity.Instance values and counts how many it has built,
// which is how a trial detects double construction.
type InstanceFactory struct {
	built atomic.Int64
}

func NewInstanceFactory() *InstanceFactory {
	return &InstanceFactory{}
}

func (f *InstanceFactory) New() *entity.Instance {
	seq := f.built.Add(1)
	id, err := id_gen.NextId(context.Background())
	if err != nil {
		log.Warn("generate instance id failed, using seq %d, err: %v", seq, err)
		id = seq
	}

	inst := &entity.Instance{
		Id:        id,
		Seq:       seq,
		CreatedAt: time.Now(),
	}
	inst.Marker = entity.InstanceMarker
	return inst
}

func (f *InstanceFactory) Built() int64 {
	return f.built.Load()
}
