package model

// Property is a rental listing. Conversations may be about one, and messages
// may share one.
type Property struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Location string   `json:"location"`
	OwnerID  string   `json:"ownerId"`
	Price    int      `json:"price"`
	Images   []string `json:"images"`
}

type PropertySummary struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Image string `json:"image"`
}

func NoPropertySummary() PropertySummary {
	return PropertySummary{Title: "No property specified", Image: DefaultAvatar}
}

func (p *Property) Summary() PropertySummary {
	s := PropertySummary{ID: p.ID, Title: p.Title, Image: DefaultAvatar}
	if len(p.Images) > 0 && p.Images[0] != "" {
		s.Image = p.Images[0]
	}
	return s
}

func PropertyFromDocument(id string, data map[string]interface{}) *Property {
	return &Property{
		ID:       id,
		Title:    str(data, "title"),
		Location: str(data, "location"),
		OwnerID:  str(data, "ownerId"),
		Price:    integer(data["price"]),
		Images:   stringList(data, "images"),
	}
}

func (p *Property) Record() map[string]interface{} {
	return map[string]interface{}{
		"title":    p.Title,
		"location": p.Location,
		"ownerId":  p.OwnerID,
		"price":    p.Price,
		"images":   append([]string(nil), p.Images...),
	}
}
