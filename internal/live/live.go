// Package live 提供可取消的订阅原语，供各存储适配器推送实时快照。
package live

import (
	"sync"
	"sync/atomic"
)

// Handler 接收一次快照或一次错误，二者只会出现其一。
type Handler[T any] func(value T, err error)

// Subscription 表示一个可取消的实时订阅，Unsubscribe 可以重复调用。
type Subscription interface {
	Unsubscribe()
}

type funcSubscription struct {
	once sync.Once
	stop func()
}

// NewSubscription 用 stop 构造一个幂等的订阅句柄。
func NewSubscription(stop func()) Subscription {
	return &funcSubscription{stop: stop}
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// Group 组合多个订阅，关闭后再加入的订阅会被立即取消。
type Group struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// NewGroup 创建空的订阅组。
func NewGroup() *Group {
	return &Group{}
}

// Add 把订阅加入组；若组已关闭则直接取消该订阅。
func (g *Group) Add(sub Subscription) {
	if sub == nil {
		return
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
}

// Unsubscribe 取消组内全部订阅。
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Closed 报告组是否已经取消。
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Len 返回仍处于活动状态的订阅数量。
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Notifier 是进程内的主题通知器。
// 监听者在注册时立即收到一次回调，之后每次 Notify 再回调一次；
// 同一个监听者的回调是串行的。回调内不能对同一主题同步调用 Notify。
type Notifier struct {
	mu     sync.RWMutex
	seq    uint64
	topics map[string]map[uint64]*listener
}

type listener struct {
	mu     sync.Mutex
	fn     func()
	closed atomic.Bool
}

// NewNotifier 创建 Notifier。
func NewNotifier() *Notifier {
	return &Notifier{topics: make(map[string]map[uint64]*listener)}
}

// Listen 注册 fn 并立即回调一次。
func (n *Notifier) Listen(topic string, fn func()) Subscription {
	l := &listener{fn: fn}

	n.mu.Lock()
	n.seq++
	id := n.seq
	if n.topics[topic] == nil {
		n.topics[topic] = make(map[uint64]*listener)
	}
	n.topics[topic][id] = l
	n.mu.Unlock()

	l.deliver()

	return NewSubscription(func() {
		l.closed.Store(true)
		n.mu.Lock()
		delete(n.topics[topic], id)
		if len(n.topics[topic]) == 0 {
			delete(n.topics, topic)
		}
		n.mu.Unlock()
	})
}

// Notify 通知主题下的全部监听者。
func (n *Notifier) Notify(topic string) {
	n.mu.RLock()
	listeners := make([]*listener, 0, len(n.topics[topic]))
	for _, l := range n.topics[topic] {
		listeners = append(listeners, l)
	}
	n.mu.RUnlock()

	for _, l := range listeners {
		l.deliver()
	}
}

// Listeners 返回主题当前的监听者数量。
func (n *Notifier) Listeners(topic string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.topics[topic])
}

func (l *listener) deliver() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return
	}
	l.fn()
}
