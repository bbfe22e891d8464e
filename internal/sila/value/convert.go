package value

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/silaforge/silac/internal/compiler/ast"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
)

// MissingValueError is returned when a message lacks a required element
type MissingValueError struct {
	// Path names the element, e.g. "Reading.MeasuredAt"
	Path string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing value for %s", e.Path)
}

// TypeError is returned when a Go value does not fit a SiLA data type
type TypeError struct {
	Path     string
	Expected string
	Value    interface{}
}

func (e *TypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("expected %s, got %T", e.Expected, e.Value)
	}
	return fmt.Sprintf("%s: expected %s, got %T", e.Path, e.Expected, e.Value)
}

// Converter maps values of one feature's data types. Type references are
// resolved against the feature's data type definitions.
type Converter struct {
	feature *ast.Feature
}

// NewConverter creates a converter for f
func NewConverter(f *ast.Feature) *Converter {
	return &Converter{feature: f}
}

// EncodeElements sets one field of msg per element from values, keyed by
// element identifier. Elements without a value are left unset.
func (c *Converter) EncodeElements(elements []*ast.Element, values map[string]interface{}, msg protoreflect.Message) error {
	return c.encodeElements("", elements, values, msg)
}

func (c *Converter) encodeElements(path string, elements []*ast.Element, values map[string]interface{}, msg protoreflect.Message) error {
	for _, e := range elements {
		v, ok := values[e.Identifier]
		if !ok || v == nil {
			continue
		}
		if err := c.encodeField(join(path, e.Identifier), e.Type, msg, e.Identifier, v); err != nil {
			return err
		}
	}
	for name := range values {
		if !hasElement(elements, name) {
			return fmt.Errorf("unknown element %s", join(path, name))
		}
	}
	return nil
}

// DecodeElements reads one value per element from msg. Every element that
// is not a list must be present.
func (c *Converter) DecodeElements(elements []*ast.Element, msg protoreflect.Message) (map[string]interface{}, error) {
	return c.decodeElements("", elements, msg)
}

func (c *Converter) decodeElements(path string, elements []*ast.Element, msg protoreflect.Message) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(elements))
	for _, e := range elements {
		v, err := c.decodeField(join(path, e.Identifier), e.Type, msg, e.Identifier)
		if err != nil {
			return nil, err
		}
		values[e.Identifier] = v
	}
	return values, nil
}

func (c *Converter) fieldOf(path string, msg protoreflect.Message, name string) (protoreflect.FieldDescriptor, error) {
	fd := msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return nil, fmt.Errorf("%s: message %s has no field %s", path, msg.Descriptor().FullName(), name)
	}
	return fd, nil
}

func (c *Converter) encodeField(path string, t ast.DataType, msg protoreflect.Message, name string, v interface{}) error {
	fd, err := c.fieldOf(path, msg, name)
	if err != nil {
		return err
	}

	if list, ok := ast.Underlying(t).(*ast.ListType); ok {
		items, ok := sliceOf(v)
		if !ok {
			return &TypeError{Path: path, Expected: "list", Value: v}
		}
		l := msg.Mutable(fd).List()
		for i, item := range items {
			elem := l.NewElement()
			if err := c.Encode(list.Element, item, elem.Message()); err != nil {
				return prefix(fmt.Sprintf("%s[%d]", path, i), err)
			}
			l.Append(elem)
		}
		return nil
	}

	if err := c.Encode(t, v, msg.Mutable(fd).Message()); err != nil {
		return prefix(path, err)
	}
	return nil
}

func (c *Converter) decodeField(path string, t ast.DataType, msg protoreflect.Message, name string) (interface{}, error) {
	fd, err := c.fieldOf(path, msg, name)
	if err != nil {
		return nil, err
	}

	if list, ok := ast.Underlying(t).(*ast.ListType); ok {
		l := msg.Get(fd).List()
		items := make([]interface{}, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			item, err := c.Decode(list.Element, l.Get(i).Message())
			if err != nil {
				return nil, prefix(fmt.Sprintf("%s[%d]", path, i), err)
			}
			items = append(items, item)
		}
		return items, nil
	}

	if !msg.Has(fd) {
		return nil, &MissingValueError{Path: path}
	}
	v, err := c.Decode(t, msg.Get(fd).Message())
	if err != nil {
		return nil, prefix(path, err)
	}
	return v, nil
}

// Encode writes v into msg, the message type t maps to. Lists are encoded
// as repeated fields by EncodeElements and cannot be encoded on their own.
func (c *Converter) Encode(t ast.DataType, v interface{}, msg protoreflect.Message) error {
	switch dt := t.(type) {
	case *ast.BasicType:
		return encodeBasic(dt.Kind, v, msg)
	case *ast.ConstrainedType:
		return c.Encode(dt.Base, v, msg)
	case *ast.TypeReference:
		def, err := c.definition(dt.Identifier)
		if err != nil {
			return err
		}
		return c.encodeField("", def.Type, msg, dt.Identifier, v)
	case *ast.StructureType:
		values, ok := v.(map[string]interface{})
		if !ok {
			return &TypeError{Expected: "structure", Value: v}
		}
		return c.encodeElements("", dt.Elements, values, msg)
	case *ast.ListType:
		return errors.New("a list can only be encoded as a repeated field")
	default:
		return fmt.Errorf("unsupported data type %T", t)
	}
}

// Decode reads the value of type t from msg
func (c *Converter) Decode(t ast.DataType, msg protoreflect.Message) (interface{}, error) {
	switch dt := t.(type) {
	case *ast.BasicType:
		return decodeBasic(dt.Kind, msg)
	case *ast.ConstrainedType:
		return c.Decode(dt.Base, msg)
	case *ast.TypeReference:
		def, err := c.definition(dt.Identifier)
		if err != nil {
			return nil, err
		}
		return c.decodeField("", def.Type, msg, dt.Identifier)
	case *ast.StructureType:
		return c.decodeElements("", dt.Elements, msg)
	case *ast.ListType:
		return nil, errors.New("a list can only be decoded from a repeated field")
	default:
		return nil, fmt.Errorf("unsupported data type %T", t)
	}
}

func (c *Converter) definition(id string) (*ast.DataTypeDefinition, error) {
	if c.feature != nil {
		if def, ok := c.feature.DataType(id); ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("data type %s is not defined", id)
}

func encodeBasic(kind ast.BasicKind, v interface{}, msg protoreflect.Message) error {
	fields := msg.Descriptor().Fields()
	set := func(name string, val protoreflect.Value) {
		msg.Set(fields.ByName(protoreflect.Name(name)), val)
	}

	switch kind {
	case ast.BasicString:
		s, ok := v.(string)
		if !ok {
			return &TypeError{Expected: "string", Value: v}
		}
		set("value", protoreflect.ValueOfString(s))
	case ast.BasicInteger:
		n, ok := toInt64(v)
		if !ok {
			return &TypeError{Expected: "integer", Value: v}
		}
		set("value", protoreflect.ValueOfInt64(n))
	case ast.BasicReal:
		f, ok := toFloat64(v)
		if !ok {
			return &TypeError{Expected: "real", Value: v}
		}
		set("value", protoreflect.ValueOfFloat64(f))
	case ast.BasicBoolean:
		b, ok := v.(bool)
		if !ok {
			return &TypeError{Expected: "boolean", Value: v}
		}
		set("value", protoreflect.ValueOfBool(b))
	case ast.BasicBinary:
		b, ok := v.([]byte)
		if !ok {
			return &TypeError{Expected: "binary", Value: v}
		}
		set("value", protoreflect.ValueOfBytes(b))
	case ast.BasicDate:
		d, ok := v.(Date)
		if !ok {
			return &TypeError{Expected: "date", Value: v}
		}
		set("day", uint32Value(d.Day))
		set("month", uint32Value(d.Month))
		set("year", uint32Value(d.Year))
		encodeTimezone(msg, d.Timezone)
	case ast.BasicTime:
		t, ok := v.(Time)
		if !ok {
			return &TypeError{Expected: "time", Value: v}
		}
		set("second", uint32Value(t.Second))
		set("minute", uint32Value(t.Minute))
		set("hour", uint32Value(t.Hour))
		set("millisecond", uint32Value(t.Millisecond))
		encodeTimezone(msg, t.Timezone)
	case ast.BasicTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return &TypeError{Expected: "timestamp", Value: v}
		}
		set("second", uint32Value(ts.Second()))
		set("minute", uint32Value(ts.Minute()))
		set("hour", uint32Value(ts.Hour()))
		set("day", uint32Value(ts.Day()))
		set("month", uint32Value(int(ts.Month())))
		set("year", uint32Value(ts.Year()))
		set("millisecond", uint32Value(ts.Nanosecond()/int(time.Millisecond)))
		_, offset := ts.Zone()
		encodeTimezone(msg, TimezoneOf(offset))
	case ast.BasicAny:
		a, ok := v.(Any)
		if !ok {
			return &TypeError{Expected: "any", Value: v}
		}
		set("type", protoreflect.ValueOfString(a.Type))
		set("payload", protoreflect.ValueOfBytes(a.Payload))
	default:
		return fmt.Errorf("unknown basic type %q", kind)
	}
	return nil
}

func decodeBasic(kind ast.BasicKind, msg protoreflect.Message) (interface{}, error) {
	fields := msg.Descriptor().Fields()
	get := func(name string) protoreflect.Value {
		return msg.Get(fields.ByName(protoreflect.Name(name)))
	}
	u := func(name string) int {
		return int(get(name).Uint())
	}

	switch kind {
	case ast.BasicString:
		return get("value").String(), nil
	case ast.BasicInteger:
		return get("value").Int(), nil
	case ast.BasicReal:
		return get("value").Float(), nil
	case ast.BasicBoolean:
		return get("value").Bool(), nil
	case ast.BasicBinary:
		if uuid := fields.ByName("binaryTransferUUID"); uuid != nil && msg.Has(uuid) {
			return nil, silaerrors.NewBinaryTransferError(silaerrors.InvalidBinaryTransferUUID,
				"binary transfer is not supported by this server")
		}
		return get("value").Bytes(), nil
	case ast.BasicDate:
		return Date{Year: u("year"), Month: u("month"), Day: u("day"), Timezone: decodeTimezone(msg)}, nil
	case ast.BasicTime:
		return Time{
			Hour: u("hour"), Minute: u("minute"), Second: u("second"), Millisecond: u("millisecond"),
			Timezone: decodeTimezone(msg),
		}, nil
	case ast.BasicTimestamp:
		return NewTimestamp(u("year"), u("month"), u("day"), u("hour"), u("minute"), u("second"), u("millisecond"),
			decodeTimezone(msg)), nil
	case ast.BasicAny:
		return Any{Type: get("type").String(), Payload: get("payload").Bytes()}, nil
	default:
		return nil, fmt.Errorf("unknown basic type %q", kind)
	}
}

func encodeTimezone(msg protoreflect.Message, tz Timezone) {
	fd := msg.Descriptor().Fields().ByName("timezone")
	if fd == nil {
		return
	}
	m := msg.Mutable(fd).Message()
	m.Set(m.Descriptor().Fields().ByName("hours"), protoreflect.ValueOfInt32(int32(tz.Hours)))
	m.Set(m.Descriptor().Fields().ByName("minutes"), protoreflect.ValueOfUint32(uint32(tz.Minutes)))
}

func decodeTimezone(msg protoreflect.Message) Timezone {
	fd := msg.Descriptor().Fields().ByName("timezone")
	if fd == nil || !msg.Has(fd) {
		return Timezone{}
	}
	m := msg.Get(fd).Message()
	return Timezone{
		Hours:   int(m.Get(m.Descriptor().Fields().ByName("hours")).Int()),
		Minutes: int(m.Get(m.Descriptor().Fields().ByName("minutes")).Uint()),
	}
}

func uint32Value(n int) protoreflect.Value {
	if n < 0 {
		n = 0
	}
	return protoreflect.ValueOfUint32(uint32(n))
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	default:
		return 0, false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	default:
		n, ok := toInt64(v)
		return float64(n), ok
	}
}

// sliceOf returns the items of any slice value
func sliceOf(v interface{}) ([]interface{}, bool) {
	if items, ok := v.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func hasElement(elements []*ast.Element, name string) bool {
	for _, e := range elements {
		if e.Identifier == name {
			return true
		}
	}
	return false
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	if name == "" {
		return path
	}
	return path + "." + name
}

// prefix qualifies the path of conversion errors raised below path
func prefix(path string, err error) error {
	var missing *MissingValueError
	if errors.As(err, &missing) {
		return &MissingValueError{Path: join(path, missing.Path)}
	}
	var typeErr *TypeError
	if errors.As(err, &typeErr) {
		return &TypeError{Path: join(path, typeErr.Path), Expected: typeErr.Expected, Value: typeErr.Value}
	}
	return err
}
