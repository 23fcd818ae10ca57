package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/gowebpki/jcs"
)

// Identifiable is the optional capability an entity implements to expose its
// persistent identity. Returning (nil, nil) means "not yet assigned".
type Identifiable interface {
	EntityID() (any, error)
}

// TypeNamer lets an entity override the type name recorded in the trail.
type TypeNamer interface {
	AuditEntityType() string
}

// ErrNilEntity is returned when a lifecycle hook fires without an entity.
var ErrNilEntity = errors.New("entity is nil")

// Descriptor is the generic, type-erased view of an entity at audit time.
type Descriptor struct {
	EntityType string
	EntityID   *int64
	Snapshot   Snapshot
}

// Describe derives the Descriptor of entity. Only a nil entity fails
// outright. A failing id accessor or snapshot leaves that field empty and is
// reported in the joined error next to a usable Descriptor.
func Describe(entity any) (Descriptor, error) {
	entityType, err := EntityType(entity)
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{EntityType: entityType}

	var errs []error
	if d.EntityID, err = EntityID(entity); err != nil {
		errs = append(errs, err)
	}
	if d.Snapshot, err = TakeSnapshot(entity); err != nil {
		errs = append(errs, err)
	}
	return d, errors.Join(errs...)
}

// EntityType returns the declared type name of entity, dereferencing pointers.
// TypeNamer takes precedence when implemented.
func EntityType(entity any) (string, error) {
	if isNil(entity) {
		return "", ErrNilEntity
	}
	if n, ok := entity.(TypeNamer); ok {
		if name := n.AuditEntityType(); name != "" {
			return name, nil
		}
	}
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name(), nil
	}
	return t.String(), nil
}

// EntityID extracts the entity's identity through Identifiable and coerces
// numeric results to int64. Entities without the capability, or whose id is
// not yet assigned, yield (nil, nil). Accessor failures and non-numeric or
// out-of-range values yield (nil, err).
func EntityID(entity any) (*int64, error) {
	ident, ok := entity.(Identifiable)
	if !ok || isNil(entity) {
		return nil, nil
	}
	raw, err := ident.EntityID()
	if err != nil {
		return nil, fmt.Errorf("entity id accessor: %w", err)
	}
	return coerceInt64(raw)
}

func coerceInt64(raw any) (*int64, error) {
	if isNil(raw) {
		return nil, nil
	}
	if n, ok := raw.(json.Number); ok {
		v, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("entity id %q is not an integer: %w", n, err)
		}
		return &v, nil
	}

	v := reflect.ValueOf(raw)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		id := v.Int()
		return &id, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("entity id %d overflows int64", u)
		}
		id := int64(u)
		return &id, nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("entity id %v is not an int64", f)
		}
		id := int64(f)
		return &id, nil
	default:
		return nil, fmt.Errorf("entity id of type %T is not numeric", raw)
	}
}

// TakeSnapshot renders entity as RFC 8785 canonical JSON so snapshots are
// byte-stable across sinks.
func TakeSnapshot(entity any) (Snapshot, error) {
	if isNil(entity) {
		return nil, ErrNilEntity
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalise snapshot: %w", err)
	}
	return Snapshot(canonical), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
