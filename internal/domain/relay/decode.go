package relay

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DefaultCustomerName is used when an insert event carries no customer name.
const DefaultCustomerName = "Customer"

// Event is a decoded order insert.
type Event struct {
	ID           string
	Status       string
	CustomerName string
}

// Decode parses an order insert payload. The row may be the top-level
// object or wrapped in a "record" or "new" envelope.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := decodeRow(jx.DecodeBytes(payload), &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode order event")
	}
	if ev.ID == "" {
		return Event{}, errors.New("order event has no id")
	}
	if ev.CustomerName == "" {
		ev.CustomerName = DefaultCustomerName
	}
	return ev, nil
}

func decodeRow(d *jx.Decoder, ev *Event) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "record", "new":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return decodeRow(d, ev)
		case "id":
			v, err := scalar(d)
			if err != nil {
				return errors.Wrap(err, "id")
			}
			ev.ID = v
		case "status":
			v, err := scalar(d)
			if err != nil {
				return errors.Wrap(err, "status")
			}
			ev.Status = v
		case "customer_name":
			v, err := scalar(d)
			if err != nil {
				return errors.Wrap(err, "customer_name")
			}
			ev.CustomerName = v
		default:
			return d.Skip()
		}
		return nil
	})
}

// scalar reads a string or number as text; null reads as empty.
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}
