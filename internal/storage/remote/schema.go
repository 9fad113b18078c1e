package remote

import (
	"context"
	"fmt"

	"shopping-lists/internal/back4app"
)

var classFields = map[string]map[string]string{
	back4app.UserClass: {
		fieldLocalID:   back4app.TypeNumber,
		"passwordHash": back4app.TypeString,
	},
	classList: {
		fieldLocalID:  back4app.TypeNumber,
		"userId":      back4app.TypeNumber,
		"name":        back4app.TypeString,
		"date":        back4app.TypeString,
		"description": back4app.TypeString,
	},
	classItem: {
		fieldLocalID: back4app.TypeNumber,
		"listId":     back4app.TypeNumber,
		"name":       back4app.TypeString,
		"price":      back4app.TypeNumber,
		"quantity":   back4app.TypeNumber,
	},
	classSequence: {
		"name":  back4app.TypeString,
		"value": back4app.TypeNumber,
	},
}

// sequencedClasses are the classes whose localIds come from a Sequence.
var sequencedClasses = []string{back4app.UserClass, classList, classItem}

// EnsureSchema creates the classes and their fields, then makes sure each
// sequence starts at or above the largest localId already stored. It is
// idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, class := range []string{back4app.UserClass, classList, classItem, classSequence} {
		if err := s.client.EnsureClass(ctx, class, classFields[class]); err != nil {
			return s.unavailable("ensure class "+class, err)
		}
	}

	for _, class := range sequencedClasses {
		if err := s.seedSequence(ctx, class); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedSequence(ctx context.Context, class string) error {
	last, err := s.client.First(ctx, class, back4app.Query{Order: "-" + fieldLocalID, Keys: []string{fieldLocalID}})
	if err != nil {
		return s.unavailable("find max "+class+" id", err)
	}
	var highest int64
	if last != nil {
		highest = last.Int64(fieldLocalID)
	}

	seq, err := s.client.First(ctx, classSequence, back4app.Query{Where: map[string]any{"name": class}})
	if err != nil {
		return s.unavailable("find "+class+" sequence", err)
	}

	if seq == nil {
		if _, err := s.client.Create(ctx, classSequence, back4app.Object{"name": class, "value": highest}); err != nil {
			return s.unavailable("create "+class+" sequence", err)
		}
		s.logger.Info("seeded sequence", "class", class, "value", highest)
		return nil
	}

	// Objects created outside the store can push the max past the counter.
	if behind := highest - seq.Int64("value"); behind > 0 {
		if _, err := s.client.Increment(ctx, classSequence, seq.ObjectID(), "value", behind); err != nil {
			return s.unavailable(fmt.Sprintf("advance %s sequence by %d", class, behind), err)
		}
		s.logger.Info("advanced sequence", "class", class, "value", highest)
	}
	return nil
}
