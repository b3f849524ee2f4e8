// Package notify contains user-visible feedback: transient toasts and the
// per-session list of order notifications.
package notify

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Variant is the visual flavour of a toast.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is an ephemeral message shown once.
type Toast struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

// Toaster displays toasts to a user.
type Toaster interface {
	Toast(t Toast)
}

// ToasterFunc adapts a function to Toaster.
type ToasterFunc func(Toast)

// Toast calls f(t).
func (f ToasterFunc) Toast(t Toast) { f(t) }

// Discard drops every toast.
var Discard Toaster = ToasterFunc(func(Toast) {})

// Type classifies a notification.
type Type string

const (
	TypeOrderUpdate       Type = "order_update"
	TypePaymentConfirmed  Type = "payment_confirmed"
	TypeContractReady     Type = "contract_ready"
	TypeDeliveryScheduled Type = "delivery_scheduled"
	TypeNewOrder          Type = "new_order"
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	switch t {
	case TypeOrderUpdate, TypePaymentConfirmed, TypeContractReady, TypeDeliveryScheduled, TypeNewOrder:
		return true
	}
	return false
}

// Notification is an entry in a session's notification list. Only Read is
// ever mutated after creation.
type Notification struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	Status        string    `json:"status,omitempty"`
	Message       string    `json:"message"`
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Read          bool      `json:"read"`
	FromPersonnel string    `json:"fromPersonnel,omitempty"`
}

// List is an in-memory, newest-first notification list. It is safe for
// concurrent use.
type List struct {
	mu      sync.Mutex
	items   []Notification
	seq     uint64
	toaster Toaster
	now     func() time.Time
}

// NewList creates an empty list. Toasts for pushed notifications go to
// toaster; pass Discard to suppress them.
func NewList(toaster Toaster) *List {
	if toaster == nil {
		toaster = Discard
	}
	return &List{toaster: toaster, now: time.Now}
}

// Push prepends n. A missing ID or Timestamp is filled in. The stored
// notification is returned.
func (l *List) Push(n Notification) Notification {
	l.mu.Lock()
	if n.Timestamp.IsZero() {
		n.Timestamp = l.now()
	}
	if n.ID == "" {
		l.seq++
		n.ID = fmt.Sprintf("n%d-%d", n.Timestamp.UnixMilli(), l.seq)
	}
	l.items = slices.Insert(l.items, 0, n)
	l.mu.Unlock()

	return n
}

// Add pushes n and raises a "New Notification" toast carrying its message.
func (l *List) Add(n Notification) Notification {
	n = l.Push(n)
	l.toaster.Toast(Toast{Title: "New Notification", Description: n.Message, Variant: VariantDefault})
	return n
}

// MarkRead flags the notification with id as read. It reports whether the
// notification was found.
func (l *List) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Read = true
			return true
		}
	}
	return false
}

// Items returns a copy of the list, newest first.
func (l *List) Items() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.items)
}

// Unread counts notifications not yet read.
func (l *List) Unread() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, it := range l.items {
		if !it.Read {
			n++
		}
	}
	return n
}
