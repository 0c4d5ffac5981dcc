package pipeline

import (
	"context"
	"errors"
	"sync"
	"toz-go/internal/model"
	"toz-go/internal/repository"
	"toz-go/pkg/log"
	"toz-go/pkg/tasks"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 64
)

var (
	// ErrQueueFull 表示等待队列已满，调用方应拒绝本次提交。
	ErrQueueFull = errors.New("pipeline: conversion queue is full")
	// ErrPoolClosed 表示工作池已关闭。
	ErrPoolClosed = errors.New("pipeline: pool is closed")
)

// Runner 执行一次转换任务。*Processor 实现了该接口。
type Runner interface {
	Process(ctx context.Context, job tasks.ConversionJob) error
}

type envelope struct {
	ctx context.Context
	job tasks.ConversionJob
}

// Pool 是固定大小的后台转换工作池，带有有界的等待队列。
// 每个任务持有独立的 context，可以按 folderId 取消。
type Pool struct {
	runner   Runner
	statuses repository.StatusRepository
	workers  int
	queue    chan envelope

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
	group   *errgroup.Group
}

// NewPool 创建工作池，workers 或 queueSize 不大于 0 时使用默认值。
func NewPool(runner Runner, statuses repository.StatusRepository, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	base, stop := context.WithCancel(context.Background())
	return &Pool{
		runner:   runner,
		statuses: statuses,
		workers:  workers,
		queue:    make(chan envelope, queueSize),
		base:     base,
		stop:     stop,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start 启动所有 worker。ctx 结束时所有任务都会被取消。
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil || p.closed {
		return
	}

	context.AfterFunc(ctx, p.stop)
	p.group = &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		workerID := i
		p.group.Go(func() error {
			for env := range p.queue {
				p.run(workerID, env)
			}
			return nil
		})
	}
	log.Infof("[Pool] 转换工作池已启动, workers: %d, queue: %d", p.workers, cap(p.queue))
}

// Submit 非阻塞地提交任务并记录 pending 状态。
// 队列已满时返回 ErrQueueFull，关闭后返回 ErrPoolClosed。
func (p *Pool) Submit(ctx context.Context, job tasks.ConversionJob) error {
	if err := p.statuses.Set(ctx, job.Name, model.ConversionPending); err != nil {
		log.Warnw("[Pool] 写入 pending 状态失败", "folderId", job.Name, "error", err)
	}

	err := p.enqueue(job)
	if err != nil {
		if derr := p.statuses.Delete(ctx, job.Name); derr != nil {
			log.Warnw("[Pool] 回滚转换状态失败", "folderId", job.Name, "error", derr)
		}
		return err
	}
	log.Infof("[Pool] 任务已入队, DocumentID: %d, FolderID: %s", job.DocumentID, job.Name)
	return nil
}

func (p *Pool) enqueue(job tasks.ConversionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	jobCtx, cancel := context.WithCancel(p.base)
	select {
	case p.queue <- envelope{ctx: jobCtx, job: job}:
		p.cancels[job.Name] = cancel
		return nil
	default:
		cancel()
		return ErrQueueFull
	}
}

// Cancel 取消 folderID 对应的任务。排队中的任务会被跳过，
// 执行中的任务在下一页之前停止。返回是否存在这样的任务。
func (p *Pool) Cancel(folderID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[folderID]
	delete(p.cancels, folderID)
	p.mu.Unlock()

	if ok {
		cancel()
		log.Infof("[Pool] 已取消任务, FolderID: %s", folderID)
	}
	return ok
}

// Shutdown 停止接收新任务并等待队列中的任务处理完。
// ctx 先结束时取消剩余任务，等 worker 退出后返回 ctx.Err()。
// 未调用 Start 时直接丢弃排队的任务并删除它们的状态。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	group := p.group
	p.mu.Unlock()

	if group == nil {
		// 从未启动：排队的任务不会执行，清掉它们的 pending 状态
		p.stop()
		for env := range p.queue {
			p.release(env.job.Name)
			if err := p.statuses.Delete(context.WithoutCancel(ctx), env.job.Name); err != nil {
				log.Warnw("[Pool] 清理未执行任务的状态失败", "folderId", env.job.Name, "error", err)
			}
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		p.stop()
		return err
	case <-ctx.Done():
		log.Warnf("[Pool] 关闭超时, 取消剩余任务")
		p.stop()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run(workerID int, env envelope) {
	job := env.job
	defer p.release(job.Name)

	if env.ctx.Err() != nil {
		log.Infof("[Pool] worker %d 跳过已取消的任务, FolderID: %s", workerID, job.Name)
		return
	}

	p.setStatus(env.ctx, job.Name, model.ConversionConverting)
	err := p.runner.Process(env.ctx, job)

	switch {
	case err == nil:
		p.setStatus(env.ctx, job.Name, model.ConversionDone)
	case env.ctx.Err() != nil, errors.Is(err, ErrTargetGone):
		// 文档已被删除，状态也随之删除，不再写回
		log.Infof("[Pool] worker %d 任务中止, FolderID: %s", workerID, job.Name)
	default:
		log.Errorw("[Pool] 转换任务失败", "worker", workerID, "folderId", job.Name, "documentId", job.DocumentID, "error", err)
		p.setStatus(env.ctx, job.Name, model.ConversionFailed)
	}
}

// setStatus 只在任务未被取消时写入状态。
func (p *Pool) setStatus(jobCtx context.Context, folderID string, status model.ConversionStatus) {
	if jobCtx.Err() != nil {
		return
	}
	if err := p.statuses.Set(context.WithoutCancel(jobCtx), folderID, status); err != nil {
		log.Warnw("[Pool] 写入转换状态失败", "folderId", folderID, "status", status, "error", err)
	}
}

func (p *Pool) release(folderID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[folderID]
	delete(p.cancels, folderID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}
