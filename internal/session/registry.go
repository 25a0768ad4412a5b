package session

import "sync"

// Starter 会话第一次上线时启动后台工作（relay），返回的 stop 在最后一个连接离开时调用。
// Starter 在 Registry 锁内执行，不能阻塞。
type Starter func(s *Session) (stop func())

// Registry 在线会话表。同一浏览器 profile 打开多个标签页时共享同一个 Session 和同一个 relay，
// 这样权限接口修改的就是 relay 正在读取的对象，每个事件也只被处理一次。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	start    Starter
}

type entry struct {
	session *Session
	refs    int
	stop    func()
}

type Option func(*Registry)

// WithStarter 为每个在线会话绑定一份后台工作
func WithStarter(start Starter) Option {
	return func(r *Registry) { r.start = start }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{sessions: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach 返回 key 对应的在线会话；不存在时用 create 创建并启动 Starter。返回的 release 必须调用一次。
func (r *Registry) Attach(userID, deviceID string, create func() *Session) (*Session, func()) {
	key := Key(userID, deviceID)

	r.mu.Lock()
	e, ok := r.sessions[key]
	if !ok {
		e = &entry{session: create()}
		if r.start != nil {
			e.stop = r.start(e.session)
		}
		r.sessions[key] = e
	}
	e.refs++
	r.mu.Unlock()

	var once sync.Once
	return e.session, func() {
		once.Do(func() { r.detach(key, e) })
	}
}

func (r *Registry) detach(key string, e *entry) {
	r.mu.Lock()
	e.refs--
	var stop func()
	if e.refs <= 0 && r.sessions[key] == e {
		delete(r.sessions, key)
		stop = e.stop
	}
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Get 查找在线会话
func (r *Registry) Get(userID, deviceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[Key(userID, deviceID)]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
