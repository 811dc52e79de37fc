package models

import "time"

// FeedbackRecord is one message submitted through the public feedback form.
type FeedbackRecord struct {
	ID          string
	Title       string
	Page        string
	Name        string
	Contact     string
	Message     string
	RelatedPage string
	IP          string
	Country     string
	UserAgent   string
	Timestamp   time.Time
	UID         string
	Resolved    bool
}

// Encode serializes f into a storage document.
func (f *FeedbackRecord) Encode() map[string]any {
	doc := map[string]any{
		"title":       f.Title,
		"page":        f.Page,
		"name":        f.Name,
		"contact":     f.Contact,
		"message":     f.Message,
		"relatedPage": f.RelatedPage,
		"ip":          f.IP,
		"userAgent":   f.UserAgent,
		"timestamp":   f.Timestamp,
		"resolved":    f.Resolved,
	}
	if f.Country != "" {
		doc["country"] = f.Country
	}
	if f.UID != "" {
		doc["uid"] = f.UID
	}
	return doc
}

// DecodeFeedback deserializes a storage document into a FeedbackRecord.
func DecodeFeedback(id string, doc map[string]any) *FeedbackRecord {
	resolved, _ := doc["resolved"].(bool)
	return &FeedbackRecord{
		ID:          id,
		Title:       str(doc["title"]),
		Page:        str(doc["page"]),
		Name:        str(doc["name"]),
		Contact:     str(doc["contact"]),
		Message:     str(doc["message"]),
		RelatedPage: str(doc["relatedPage"]),
		IP:          str(doc["ip"]),
		Country:     str(doc["country"]),
		UserAgent:   str(doc["userAgent"]),
		Timestamp:   timestamp(doc["timestamp"]),
		UID:         str(doc["uid"]),
		Resolved:    resolved,
	}
}
