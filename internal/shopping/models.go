package shopping

// User is an account that owns shopping lists.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	// Password holds the stored credential (a bcrypt hash). It is never serialized.
	Password string `json:"-"`
}

// NewUser is the insertable subset of User.
type NewUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ShoppingList represents a named, dated shopping list owned by one user.
type ShoppingList struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"userId"`
	Name        string  `json:"name"`
	Date        Date    `json:"date"`
	Description *string `json:"description"`
}

// NewList is the insertable subset of ShoppingList.
type NewList struct {
	Name        string  `json:"name"`
	Date        Date    `json:"date"`
	Description *string `json:"description,omitempty"`
}

// ListPatch carries a partial update. Nil fields are left untouched, and a
// JSON null decodes to nil, so null never clears Description; "" does.
type ListPatch struct {
	Name        *string `json:"name,omitempty"`
	Date        *Date   `json:"date,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Apply merges the provided fields of p into l.
func (p ListPatch) Apply(l ShoppingList) ShoppingList {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Date != nil {
		l.Date = *p.Date
	}
	if p.Description != nil {
		d := *p.Description
		l.Description = &d
	}
	return l
}

// ListItem is a priced, quantified entry of a shopping list.
type ListItem struct {
	ID       int64   `json:"id"`
	ListID   int64   `json:"listId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// NewItem is the insertable subset of ListItem.
type NewItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ItemPatch carries a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Name     *string  `json:"name,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
}

// Apply merges the provided fields of p into it.
func (p ItemPatch) Apply(it ListItem) ListItem {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Price != nil {
		it.Price = *p.Price
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	return it
}

// Subtotal is price times quantity.
func (it ListItem) Subtotal() float64 {
	return it.Price * float64(it.Quantity)
}

// Total sums the subtotals of items, rounded to cents.
func Total(items []ListItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Subtotal()
	}
	return roundCents(sum)
}

func roundCents(v float64) float64 {
	if v < 0 {
		return -roundCents(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
