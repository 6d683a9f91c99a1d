package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/internal/events"
	"credence/pkg/domain"
)

type collector struct {
	mu   sync.Mutex
	seen map[domain.ActivityID][]int64
}

func (c *collector) Handle(_ context.Context, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[env.ActivityID] = append(c.seen[env.ActivityID], env.SequenceNo)
	return nil
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.seen {
		n += len(s)
	}
	return n
}

func TestBus_PerActivityOrderAcrossGroups(t *testing.T) {
	b := New(WithShards(4))
	b.Register("issuer")
	b.Register("notifications")

	activities := make([]domain.ActivityID, 10)
	for i := range activities {
		activities[i] = domain.NewActivityID()
	}
	ctx := context.Background()
	for seq := int64(0); seq < 5; seq++ {
		for _, a := range activities {
			env, err := events.New(events.TypeActivityCreated, domain.TenantID(a), a, seq, time.Now(), nil)
			require.NoError(t, err)
			require.NoError(t, b.Publish(ctx, env))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	issuer := &collector{seen: map[domain.ActivityID][]int64{}}
	notifications := &collector{seen: map[domain.ActivityID][]int64{}}
	go func() { _ = b.Subscribe(runCtx, "issuer", issuer) }()
	go func() { _ = b.Subscribe(runCtx, "notifications", notifications) }()

	require.Eventually(t, func() bool {
		return issuer.total() == 50 && notifications.total() == 50
	}, 2*time.Second, 5*time.Millisecond)

	for _, a := range activities {
		assert.Equal(t, []int64{0, 1, 2, 3, 4}, issuer.seen[a])
		assert.Equal(t, []int64{0, 1, 2, 3, 4}, notifications.seen[a])
	}
}

func TestBus_ClosedRejectsPublish(t *testing.T) {
	b := New()
	b.Close()
	err := b.Publish(context.Background(), events.Envelope{ActivityID: domain.NewActivityID()})
	assert.ErrorIs(t, err, ErrClosed)
}
