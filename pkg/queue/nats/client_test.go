package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

func TestStreamConfig(t *testing.T) {
	cfg := Config{StreamName: "elois", Retention: 72 * time.Hour}
	sc := cfg.streamConfig(Subjects())

	assert.Equal(t, "elois", sc.Name)
	assert.Equal(t, Subjects(), sc.Subjects)
	assert.Equal(t, jetstream.WorkQueuePolicy, sc.Retention)
	assert.Equal(t, jetstream.DiscardNew, sc.Discard)
	assert.Equal(t, jetstream.FileStorage, sc.Storage)
	assert.Equal(t, 72*time.Hour, sc.MaxAge)
	assert.Equal(t, 1, sc.Replicas)

	cfg.MemoryOnly = true
	cfg.Replicas = 3
	sc = cfg.streamConfig(Subjects())
	assert.Equal(t, jetstream.MemoryStorage, sc.Storage)
	assert.Equal(t, 3, sc.Replicas)
}

func TestConsumerConfig(t *testing.T) {
	cfg := Config{AckWait: 2 * time.Minute, MaxDeliver: 5}
	cc := cfg.consumerConfig(SubjectStatsWrite, "writer-stats")

	assert.Equal(t, "writer-stats", cc.Durable)
	assert.Equal(t, SubjectStatsWrite, cc.FilterSubject)
	assert.Equal(t, jetstream.AckExplicitPolicy, cc.AckPolicy)
	assert.Equal(t, 2*time.Minute, cc.AckWait)
	assert.Equal(t, 5, cc.MaxDeliver)
}
