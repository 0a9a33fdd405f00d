package models

import "time"

// ChatState is the storefront bot conversation state for one chat.
type ChatState struct {
	ChatID      int64
	CurrentStep string
	TempData    map[string]interface{}
}

func (s *ChatState) Set(key string, value interface{}) {
	if s.TempData == nil {
		s.TempData = make(map[string]interface{})
	}
	s.TempData[key] = value
}

func (s *ChatState) GetInt64(key string) int64 {
	if s.TempData == nil {
		return 0
	}
	val, ok := s.TempData[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (s *ChatState) GetString(key string) string {
	if s.TempData == nil {
		return ""
	}
	if str, ok := s.TempData[key].(string); ok {
		return str
	}
	return ""
}

func (s *ChatState) GetBool(key string) bool {
	if s.TempData == nil {
		return false
	}
	b, _ := s.TempData[key].(bool)
	return b
}

func (s *ChatState) GetTime(key string) time.Time {
	if s.TempData == nil {
		return time.Time{}
	}
	switch v := s.TempData[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
