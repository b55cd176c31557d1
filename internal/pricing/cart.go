package pricing

import (
	"errors"
	"fmt"
	"sync"
)

// Static errors for cart operations.
var (
	// ErrDuplicateItem is returned when the same beat and license is added twice.
	ErrDuplicateItem = errors.New("pricing: item already in cart")
	// ErrItemNotFound is returned when removing an item that is not in the cart.
	ErrItemNotFound = errors.New("pricing: item not in cart")
)

// Item is one beat license in a cart.
type Item struct {
	BeatID  string  `json:"beat_id" validate:"required"`
	License License `json:"license" validate:"required"`
	Tiers   Tiers   `json:"-"`

	// Filename is the name the licensed file is delivered under.
	Filename string `json:"filename,omitempty"`
}

func (i Item) key() string {
	return i.BeatID + "|" + string(i.License)
}

// Line is a priced cart item.
type Line struct {
	BeatID   string `json:"beat_id"`
	Filename string `json:"filename,omitempty"`
	Quote
}

// CartQuote is the priced content of a cart.
type CartQuote struct {
	Lines     []Line `json:"lines"`
	Total     int64  `json:"total"`
	Estimated bool   `json:"estimated"` // any line was estimated
}

// Cart is an ordered set of items. It is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	items []Item
}

// NewCart creates an empty cart.
func NewCart() *Cart {
	return &Cart{}
}

// Add appends item. The license must be valid and the beat+license pair
// must not already be in the cart.
func (c *Cart) Add(item Item) error {
	if !item.License.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownLicense, item.License)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.items {
		if existing.key() == item.key() {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicateItem, item.BeatID, item.License)
		}
	}
	c.items = append(c.items, item)
	return nil
}

// Remove deletes the beat+license pair from the cart.
func (c *Cart) Remove(beatID string, license License) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Item{BeatID: beatID, License: license}.key()
	for i, existing := range c.items {
		if existing.key() == key {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Items returns a copy of the cart contents.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.items...)
}

// Len returns the number of items in the cart.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Quote prices every item. It fails on the first item that cannot be priced.
func (c *Cart) Quote() (CartQuote, error) {
	items := c.Items()

	out := CartQuote{Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		q, err := Price(item.Tiers, item.License)
		if err != nil {
			return CartQuote{}, fmt.Errorf("beat %s: %w", item.BeatID, err)
		}
		out.Lines = append(out.Lines, Line{BeatID: item.BeatID, Filename: item.Filename, Quote: q})
		out.Total += q.Amount
		out.Estimated = out.Estimated || q.Estimated
	}
	return out, nil
}
