// Package item models the work items being prioritized and the external
// item-store contract that supplies their raw attributes and receives score
// writebacks.
package item

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// ValueType discriminates the raw attribute representations an item store
// may supply.
type ValueType int

const (
	TypeNumber ValueType = iota
	TypeLabel
	TypeFlag
)

// Value is one raw attribute value.  Exactly one of the payload fields is
// meaningful, selected by Type.
type Value struct {
	Type   ValueType `json:"type"`
	Number float64   `json:"number,omitempty"`
	Label  string    `json:"label,omitempty"`
	Flag   bool      `json:"flag,omitempty"`
}

// Number wraps a numeric attribute value.
func Number(v float64) Value { return Value{Type: TypeNumber, Number: v} }

// Label wraps a categorical attribute value.
func Label(s string) Value { return Value{Type: TypeLabel, Label: s} }

// Flag wraps a boolean attribute value.
func Flag(b bool) Value { return Value{Type: TypeFlag, Flag: b} }

// AsNumber coerces the value to a float64 where that makes sense: numbers
// pass through and flags map to 0/1.  Labels report ok=false.
func (v Value) AsNumber() (float64, bool) {
	switch v.Type {
	case TypeNumber:
		return v.Number, true
	case TypeFlag:
		if v.Flag {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) canonical() string {
	switch v.Type {
	case TypeNumber:
		return "n:" + strconv.FormatFloat(v.Number, 'g', -1, 64)
	case TypeLabel:
		return "l:" + v.Label
	case TypeFlag:
		return "f:" + strconv.FormatBool(v.Flag)
	default:
		return fmt.Sprintf("?:%d", v.Type)
	}
}

// Attributes maps criterion ID to raw value.  Absent criteria are simply
// missing keys; the normalizer applies the configured missing-value policy.
type Attributes map[string]Value

// WorkItem is one unit being prioritized.
type WorkItem struct {
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// Fingerprint returns the sha256 digest of the item's attributes in a
// canonical (key-sorted) encoding.  Two items with identical attributes
// always produce the same fingerprint, which keys the score cache and
// drives incremental recalculation.
func (w WorkItem) Fingerprint() string {
	keys := make([]string, 0, len(w.Attributes))
	for k := range w.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(w.Attributes[k].canonical())
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Store is the external item-store contract.  Implementations live outside
// the engine; the orchestrator consumes them behind this interface.
type Store interface {
	// ListItems returns the items matching filter; an empty filter selects
	// everything.
	ListItems(ctx context.Context, filter string) ([]WorkItem, error)

	// WriteScores acknowledges a completed ranking back to the item store.
	WriteScores(ctx context.Context, batchID string, ranked []decision.RankedItem) error
}
