// Package session holds the per-browser-profile context the relay runs under.
package session

import (
	"fmt"
	"sync"
)

// Permission 浏览器通知权限
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission 未知值按 default 处理
func ParsePermission(s string) Permission {
	switch Permission(s) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// Session 一个用户在一个浏览器 profile 上的会话。
// relay 只读权限状态，写入只来自 permission.Manager。
type Session struct {
	UserID   string
	DeviceID string

	mu         sync.RWMutex
	permission Permission
}

func New(userID, deviceID string, permission Permission) *Session {
	if permission == "" {
		permission = PermissionDefault
	}
	return &Session{
		UserID:     userID,
		DeviceID:   deviceID,
		permission: permission,
	}
}

func (s *Session) Key() string {
	return Key(s.UserID, s.DeviceID)
}

func Key(userID, deviceID string) string {
	return fmt.Sprintf("%s:%s", userID, deviceID)
}

func (s *Session) Permission() Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permission
}

func (s *Session) SetPermission(p Permission) {
	s.mu.Lock()
	s.permission = p
	s.mu.Unlock()
}

// CompareAndSetPermission 仅当当前状态为 from 时切换到 to
func (s *Session) CompareAndSetPermission(from, to Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission != from {
		return false
	}
	s.permission = to
	return true
}
