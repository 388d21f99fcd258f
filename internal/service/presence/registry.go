package presence

import (
	"slices"
	"sync"
)

// Handle 实时连接句柄。实现必须是可比较类型（通常为指针）。
type Handle interface {
	Send(event string, payload any) error
}

// Registry 在线参与者注册表
//
// 同一参与者至多保留一个句柄，后连接者覆盖前者；匿名连接只参与广播。
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]Handle
	handles  map[Handle]string
	notifyMu sync.Mutex
	onChange func(present []string)
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]Handle),
		handles: make(map[Handle]string),
	}
}

// OnChange 设置在线集合变化时的回调，回调在锁外串行执行
func (r *Registry) OnChange(fn func(present []string)) {
	r.notifyMu.Lock()
	r.onChange = fn
	r.notifyMu.Unlock()
}

// Connect 记录连接；participantID 为空时视为匿名连接
func (r *Registry) Connect(participantID string, h Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if prev, ok := r.byID[participantID]; ok && prev != h && participantID != "" {
		// 旧句柄仍然存活，但不再代表该参与者
		r.handles[prev] = ""
	}
	// 同一句柄改以其他身份注册时，释放其原有身份
	if old, ok := r.handles[h]; ok && old != "" && old != participantID && r.byID[old] == h {
		delete(r.byID, old)
	}
	r.handles[h] = participantID
	if participantID != "" {
		r.byID[participantID] = h
	}
	r.mu.Unlock()

	r.broadcast()
}

// Disconnect 按句柄反查并移除；未命中时不改变状态
func (r *Registry) Disconnect(h Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	id, known := r.handles[h]
	delete(r.handles, h)
	if id != "" && r.byID[id] == h {
		delete(r.byID, id)
	}
	r.mu.Unlock()

	if known {
		r.broadcast()
	}
}

// Lookup 获取参与者当前句柄
func (r *Registry) Lookup(participantID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byID[participantID]
	return h, ok
}

// IsPresent 判断参与者是否在线
func (r *Registry) IsPresent(participantID string) bool {
	_, ok := r.Lookup(participantID)
	return ok
}

// Present 返回排序后的在线参与者列表
func (r *Registry) Present() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Connections 返回所有存活句柄，包括匿名连接
func (r *Registry) Connections() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.handles))
	for h := range r.handles {
		out = append(out, h)
	}
	return out
}

func (r *Registry) broadcast() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	if r.onChange == nil {
		return
	}
	// 快照在 notifyMu 内获取，保证广播顺序与状态变化一致
	r.onChange(r.Present())
}
