package store

import (
	"context"
	"fmt"
	"math"
	"time"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/reading"
)

// Collections and their value fields
const (
	CollectionTemperature = "sensor_temperature"
	CollectionHumidity    = "sensor_humidity"

	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
)

// Record types
const (
	TypeInlet  = "inlet"
	TypeOutlet = "outlet"
	TypeRoom   = "room"
)

// Sink is the append-only persistence capability. Implementations are safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, r Record) error
	Close(ctx context.Context) error
}

// Record is one timestamped measurement as written to a collection
type Record struct {
	Collection string
	Type       string
	Field      string
	Value      float64
	Timestamp  time.Time
}

// allowed lists the valid types per collection and the field each collection uses
var allowed = map[string]struct {
	field string
	types map[string]bool
}{
	CollectionTemperature: {field: FieldTemperature, types: map[string]bool{TypeInlet: true, TypeOutlet: true, TypeRoom: true}},
	CollectionHumidity:    {field: FieldHumidity, types: map[string]bool{TypeRoom: true}},
}

// Validate checks the record against the collection schema
func (r Record) Validate() error {
	schema, ok := allowed[r.Collection]
	if !ok {
		return r.invalid(fmt.Errorf("unknown collection %q", r.Collection))
	}
	if r.Field != schema.field {
		return r.invalid(fmt.Errorf("collection %s stores field %q, got %q", r.Collection, schema.field, r.Field))
	}
	if !schema.types[r.Type] {
		return r.invalid(fmt.Errorf("type %q not allowed in %s", r.Type, r.Collection))
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return r.invalid(fmt.Errorf("value %v is not finite", r.Value))
	}
	if r.Timestamp.IsZero() {
		return r.invalid(fmt.Errorf("timestamp is zero"))
	}
	return nil
}

func (r Record) invalid(err error) error {
	return bridgeerrors.NewPersistenceError("validate", err, r.Collection, r.Type)
}

// FromReading maps a sensor reading to its record, stamping it in loc
func FromReading(rd reading.SensorReading, loc *time.Location) (Record, error) {
	if loc == nil {
		loc = time.UTC
	}
	rec := Record{
		Value:     rd.Value(),
		Timestamp: rd.ObservedAt.In(loc),
	}

	switch rd.Kind {
	case reading.KindInlet:
		rec.Collection, rec.Field, rec.Type = CollectionTemperature, FieldTemperature, TypeInlet
	case reading.KindOutlet:
		rec.Collection, rec.Field, rec.Type = CollectionTemperature, FieldTemperature, TypeOutlet
	case reading.KindRoom:
		rec.Collection, rec.Field, rec.Type = CollectionTemperature, FieldTemperature, TypeRoom
	case reading.KindHumidity:
		rec.Collection, rec.Field, rec.Type = CollectionHumidity, FieldHumidity, TypeRoom
	default:
		return Record{}, fmt.Errorf("no collection for reading kind %q", rd.Kind)
	}
	return rec, nil
}
