package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout 表示在 LockTimeout 内未能取得 blob 文件锁。
var ErrLockTimeout = errors.New("cache: blob lock timeout")

// Locker 串行化同一 blob 的 续传 → 安装 过程。进程内使用按 key 引用计数的锁；
// 开启 fileLocking 后额外在 .locks/ 下持有 flock，覆盖多进程场景。
type Locker struct {
	fileLocking bool
	timeout     time.Duration

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	ch   chan struct{}
	refs int
}

// NewLocker 构造 Locker；timeout <= 0 时文件锁无限等待（仍受 ctx 约束）。
func NewLocker(fileLocking bool, timeout time.Duration) *Locker {
	return &Locker{
		fileLocking: fileLocking,
		timeout:     timeout,
		locks:       make(map[string]*entryLock),
	}
}

// Lock 获取 root+contentID 的锁，返回的函数负责释放。
func (l *Locker) Lock(ctx context.Context, root Root, contentID string) (func(), error) {
	key := root.Dir + "::" + contentID
	release, err := l.lockEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if !l.fileLocking {
		return release, nil
	}

	unlockFile, err := acquireFileLock(ctx, root.LockPath(contentID), l.timeout)
	if err != nil {
		release()
		return nil, err
	}
	return func() {
		unlockFile()
		release()
	}, nil
}

func (l *Locker) lockEntry(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lock := l.locks[key]
	if lock == nil {
		lock = &entryLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(key, lock)
		return nil, ctx.Err()
	}

	return func() {
		<-lock.ch
		l.releaseRef(key, lock)
	}, nil
}

func (l *Locker) releaseRef(key string, lock *entryLock) {
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
