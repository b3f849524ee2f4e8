package cart

import "github.com/shopspring/decimal"

// Select marks or unmarks a line for checkout. Unknown products are ignored.
func (s *Store) Select(productID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(productID) < 0 {
		return
	}
	if on {
		s.selected[productID] = struct{}{}
	} else {
		delete(s.selected, productID)
	}
}

// SelectAll marks every line, or clears the selection when on is false.
func (s *Store) SelectAll(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.selected)
	if !on {
		return
	}
	for _, it := range s.items {
		s.selected[it.ProductID] = struct{}{}
	}
}

// IsSelected reports whether productID is marked for checkout.
func (s *Store) IsSelected(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.selected[productID]
	return ok
}

// HasSelection reports whether at least one line is selected.
func (s *Store) HasSelection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.selected) > 0
}

// SelectedItems returns the selected lines in cart order.
func (s *Store) SelectedItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.selectedLocked()
}

// SelectedTotal is TotalPrice restricted to selected lines.
func (s *Store) SelectedTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sum(s.selectedLocked())
}

// SelectedCount is the sum of quantities of selected lines.
func (s *Store) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.selectedLocked() {
		n += it.Quantity
	}
	return n
}

// RemoveSelected drops every selected line.
func (s *Store) RemoveSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, it := range s.items {
		if _, ok := s.selected[it.ProductID]; !ok {
			kept = append(kept, it)
		}
	}
	clear(s.items[len(kept):])
	s.items = kept
	clear(s.selected)
}

func (s *Store) selectedLocked() []Item {
	out := make([]Item, 0, len(s.selected))
	for _, it := range s.items {
		if _, ok := s.selected[it.ProductID]; ok {
			out = append(out, it)
		}
	}
	return out
}

// RemoveOrdered takes ordered lines out of the cart. Each line loses the
// ordered quantity and its selection; a line left with nothing is removed.
// Lines added or selected after the order was taken are kept as they are.
func (s *Store) RemoveOrdered(ordered []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range ordered {
		i := s.index(o.ProductID)
		if i < 0 {
			continue
		}
		if q := s.items[i].Quantity - o.Quantity; q > 0 {
			s.items[i].Quantity = q
			delete(s.selected, o.ProductID)
			continue
		}
		s.removeAt(i)
	}
}
