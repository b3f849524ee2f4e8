// Package session keeps the per-browser-session objects of the storefront:
// cart, checkout, signed-in customer and notifications.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
	"github.com/xenking/prefab-storefront/internal/domain/cart"
	"github.com/xenking/prefab-storefront/internal/domain/checkout"
	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
	"github.com/xenking/prefab-storefront/internal/domain/relay"
)

// Session is the state of one browser session. Its fields are set at
// creation and never replaced.
type Session struct {
	ID            string
	Cart          *cart.Store
	Checkout      *checkout.Coordinator
	Customer      *customer.Store
	Notifications *notify.List
	Events        *notify.Hub
	Auth          auth.Provider

	created  time.Time
	lastSeen atomic.Int64

	tap       *relay.Tap
	orderFeed *relay.Subscription
	closeOnce sync.Once
}

// Touch marks the session as used at now.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Created returns when the session was opened.
func (s *Session) Created() time.Time {
	return s.created
}

// Live reports whether the session still receives order notifications.
func (s *Session) Live() bool {
	if s.orderFeed == nil {
		return false
	}
	select {
	case <-s.orderFeed.Done():
		return false
	default:
		return true
	}
}

// Close releases the identity subscription and stops order notifications.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Customer.Close()
		if s.orderFeed != nil {
			s.orderFeed.Close()
		}
		if s.tap != nil {
			s.tap.Close()
		}
	})
}

// notifications pushes relayed notifications into the list and out to live
// event subscribers.
type notifications struct {
	list *notify.List
	hub  *notify.Hub
}

func (n notifications) Push(v notify.Notification) notify.Notification {
	v = n.list.Push(v)
	n.hub.Notify(v)
	return v
}
