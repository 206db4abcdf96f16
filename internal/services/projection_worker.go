package services

import (
	"context"
	"sync"
	"time"

	"cinelog/internal/logger"
)

const (
	repairQueueSize = 1000
	repairBatchSize = 50
	repairTick      = 500 * time.Millisecond
)

// RepairScheduler accepts comment ids whose counters should be recounted soon.
type RepairScheduler interface {
	Schedule(commentID uint)
}

// ProjectionWorker 异步修复评论的点赞/点踩计数
type ProjectionWorker struct {
	repair  *ProjectionService
	queue   chan uint // 待修复的评论 ID 队列
	pending map[uint]bool
	mu      sync.Mutex

	// processed is signalled after each batch; tests wait on it.
	processed chan int
}

func NewProjectionWorker(repair *ProjectionService) *ProjectionWorker {
	return &ProjectionWorker{
		repair:  repair,
		queue:   make(chan uint, repairQueueSize), // 缓冲队列，防止阻塞
		pending: make(map[uint]bool),
	}
}

// Schedule 将评论加入修复队列（异步），短时间内重复的 ID 只处理一次
func (w *ProjectionWorker) Schedule(commentID uint) {
	w.mu.Lock()
	if w.pending[commentID] {
		w.mu.Unlock()
		return
	}
	w.pending[commentID] = true
	w.mu.Unlock()

	select {
	case w.queue <- commentID:
	default:
		// 队列满了，移除 pending 标记，交给定时全量修复
		w.mu.Lock()
		delete(w.pending, commentID)
		w.mu.Unlock()
		logger.For(nil).WithField("comment_id", commentID).Warn("Repair queue full, dropping")
	}
}

// Start runs the queue consumer until ctx is cancelled.
func (w *ProjectionWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *ProjectionWorker) run(ctx context.Context) {
	batch := make([]uint, 0, repairBatchSize)
	ticker := time.NewTicker(repairTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			batch = append(batch, id)
			if len(batch) >= repairBatchSize {
				w.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *ProjectionWorker) processBatch(ctx context.Context, ids []uint) {
	for _, id := range ids {
		if _, err := w.repair.RepairComment(ctx, id); err != nil {
			logger.For(ctx).WithError(err).WithField("comment_id", id).Error("Counter repair failed")
		}

		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}
	if w.processed != nil {
		w.processed <- len(ids)
	}
}

// StartPeriodicRepair recounts every comment once per interval until ctx is cancelled.
func (w *ProjectionWorker) StartPeriodicRepair(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.For(ctx).Info("Starting periodic counter repair")
				if _, _, err := w.repair.RepairAll(ctx); err != nil && ctx.Err() == nil {
					logger.For(ctx).WithError(err).Error("Periodic counter repair failed")
				}
			}
		}
	}()
}
