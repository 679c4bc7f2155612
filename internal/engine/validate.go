package engine

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	maxTopicChars = 200
	minFloor      = 0.05
	maxFloor      = 0.20
)

// ItemInput carries the fields of a new item.
type ItemInput struct {
	Topic        string
	Content      string
	Attention    float64
	Interest     float64
	Difficulty   float64
	BaseMemory   float64
	SleepQuality float64
	MemoryFloor  float64
}

// ItemUpdate is a partial update of an item's static inputs. Nil fields are
// left unchanged.
type ItemUpdate struct {
	Topic       *string
	Content     *string
	Attention   *float64
	Interest    *float64
	Difficulty  *float64
	BaseMemory  *float64
	MemoryFloor *float64
}

func checkUnit(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &ValidationError{Field: field, Msg: fmt.Sprintf("must be within [0, 1], got %v", v)}
	}
	return nil
}

func checkFloor(v float64) error {
	if math.IsNaN(v) || v < minFloor || v > maxFloor {
		return &ValidationError{Field: "memory_floor", Msg: fmt.Sprintf("must be within [%.2f, %.2f], got %v", minFloor, maxFloor, v)}
	}
	return nil
}

// normalizeTopic trims the topic and rejects empty or oversized values.
func normalizeTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", &ValidationError{Field: "topic", Msg: "must not be empty"}
	}
	if n := utf8.RuneCountInString(topic); n > maxTopicChars {
		return "", &ValidationError{Field: "topic", Msg: fmt.Sprintf("too long (%d chars, max %d)", n, maxTopicChars)}
	}
	return topic, nil
}

// validateInput checks a new item and returns a normalized copy.
func validateInput(in ItemInput) (ItemInput, error) {
	topic, err := normalizeTopic(in.Topic)
	if err != nil {
		return in, err
	}
	in.Topic = topic
	in.Content = strings.TrimSpace(in.Content)

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"attention", in.Attention},
		{"interest", in.Interest},
		{"difficulty", in.Difficulty},
		{"base_memory", in.BaseMemory},
		{"sleep_quality", in.SleepQuality},
	} {
		if err := checkUnit(f.name, f.v); err != nil {
			return in, err
		}
	}
	if err := checkFloor(in.MemoryFloor); err != nil {
		return in, err
	}
	return in, nil
}

// validateUpdate checks a partial update and returns a normalized copy.
func validateUpdate(u ItemUpdate) (ItemUpdate, error) {
	if u.Topic != nil {
		topic, err := normalizeTopic(*u.Topic)
		if err != nil {
			return u, err
		}
		u.Topic = &topic
	}
	if u.Content != nil {
		content := strings.TrimSpace(*u.Content)
		u.Content = &content
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"attention", u.Attention},
		{"interest", u.Interest},
		{"difficulty", u.Difficulty},
		{"base_memory", u.BaseMemory},
	} {
		if f.v == nil {
			continue
		}
		if err := checkUnit(f.name, *f.v); err != nil {
			return u, err
		}
	}
	if u.MemoryFloor != nil {
		if err := checkFloor(*u.MemoryFloor); err != nil {
			return u, err
		}
	}
	return u, nil
}

func (u ItemUpdate) empty() bool {
	return u.Topic == nil && u.Content == nil && u.Attention == nil && u.Interest == nil &&
		u.Difficulty == nil && u.BaseMemory == nil && u.MemoryFloor == nil
}
