package id_gen

import (
	"context"
	"hash/fnv"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sony/sonyflake/v2"

	"github.com/mbeoliero/singleton/pkg/generic"
	"github.com/mbeoliero/singleton/pkg/log"
)

var DefaultStartTime = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

type IdGenerator interface {
	NextId(ctx context.Context) (int64, error)
}

var (
	generator        IdGenerator
	defaultGenerator = generic.Once(newDefaultGenerator)
)

// SetGenerator overrides the process generator (used for testing).
func SetGenerator(g IdGenerator) {
	generator = g
}

type FlakeIdGenerator struct {
	SF *sonyflake.Sonyflake
}

func (f *FlakeIdGenerator) NextId(ctx context.Context) (int64, error) {
	return f.SF.NextID()
}

// SeqIdGenerator hands out increasing ids from an in-memory counter.
type SeqIdGenerator struct {
	next atomic.Int64
}

func (s *SeqIdGenerator) NextId(ctx context.Context) (int64, error) {
	return s.next.Add(1), nil
}

func newDefaultGenerator() IdGenerator {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: DefaultStartTime,
		MachineID: machineId,
	})
	if err != nil {
		log.Warn("sonyflake unavailable, falling back to sequence ids, err: %v", err)
		return &SeqIdGenerator{}
	}
	return &FlakeIdGenerator{SF: sf}
}

// machineId derives a 16-bit id from hostname and pid, so it works on hosts without a private ip.
func machineId() (int, error) {
	host, err := os.Hostname()
	if err != nil {
		return 0, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host + ":" + strconv.Itoa(os.Getpid())))
	return int(h.Sum32() & 0xffff), nil
}

func NextId(ctx context.Context) (int64, error) {
	if generator != nil {
		return generator.NextId(ctx)
	}
	return defaultGenerator().NextId(ctx)
}
