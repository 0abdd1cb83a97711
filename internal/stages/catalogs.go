package stages

import (
	"context"
	"sync"
)

// Room is one bookable space in the venue.
type Room struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	DayRate  int64  `json:"day_rate"` // cents
}

// Product is one orderable add-on (catering, equipment, staffing).
type Product struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"` // cents
	Category  string `json:"category"`
}

// Calendar answers room availability questions for a given date.
type Calendar interface {
	Available(ctx context.Context, roomID, date string) (bool, error)
}

// RoomCatalog lists the venue's rooms.
type RoomCatalog interface {
	Rooms(ctx context.Context) ([]Room, error)
	Room(ctx context.Context, id string) (Room, bool, error)
}

// ProductCatalog lists orderable products.
type ProductCatalog interface {
	Products(ctx context.Context) ([]Product, error)
	Product(ctx context.Context, sku string) (Product, bool, error)
}

// MemoryCalendar is an in-process calendar keyed by room and date.
type MemoryCalendar struct {
	mu   sync.RWMutex
	busy map[string]map[string]bool // roomID -> date -> booked
}

// NewMemoryCalendar returns an empty calendar; every room is free everywhere.
func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{busy: make(map[string]map[string]bool)}
}

// Block marks a room as booked on a date.
func (c *MemoryCalendar) Block(roomID, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[roomID] == nil {
		c.busy[roomID] = make(map[string]bool)
	}
	c.busy[roomID][date] = true
}

// Available implements Calendar.
func (c *MemoryCalendar) Available(_ context.Context, roomID, date string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.busy[roomID][date], nil
}

// MemoryRoomCatalog is a fixed in-process room list.
type MemoryRoomCatalog struct {
	rooms []Room
}

// NewMemoryRoomCatalog returns a catalog over the given rooms.
func NewMemoryRoomCatalog(rooms ...Room) *MemoryRoomCatalog {
	return &MemoryRoomCatalog{rooms: rooms}
}

// Rooms implements RoomCatalog.
func (c *MemoryRoomCatalog) Rooms(context.Context) ([]Room, error) {
	out := make([]Room, len(c.rooms))
	copy(out, c.rooms)
	return out, nil
}

// Room implements RoomCatalog.
func (c *MemoryRoomCatalog) Room(_ context.Context, id string) (Room, bool, error) {
	for _, r := range c.rooms {
		if r.ID == id {
			return r, true, nil
		}
	}
	return Room{}, false, nil
}

// MemoryProductCatalog is a fixed in-process product list.
type MemoryProductCatalog struct {
	products []Product
}

// NewMemoryProductCatalog returns a catalog over the given products.
func NewMemoryProductCatalog(products ...Product) *MemoryProductCatalog {
	return &MemoryProductCatalog{products: products}
}

// Products implements ProductCatalog.
func (c *MemoryProductCatalog) Products(context.Context) ([]Product, error) {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out, nil
}

// Product implements ProductCatalog.
func (c *MemoryProductCatalog) Product(_ context.Context, sku string) (Product, bool, error) {
	for _, p := range c.products {
		if p.SKU == sku {
			return p, true, nil
		}
	}
	return Product{}, false, nil
}
