package fluid

import "fmt"

// Kind identifies the type a uniform slot accepts.
type Kind int

const (
	KindScalar Kind = iota
	KindVec2
	KindVec3
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindVec2:
		return "vec2"
	case KindVec3:
		return "vec3"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Vec2 is a two component uniform value.
type Vec2 [2]float32

// Vec3 is a three component uniform value.
type Vec3 [3]float32

// Uniform declares one named kernel parameter.
type Uniform struct {
	Name string
	Kind Kind
}

// Schema lists a kernel's uniforms in argument order.
type Schema []Uniform

// Validate rejects empty and duplicate names.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, u := range s {
		if u.Name == "" {
			return fmt.Errorf("%w: empty name", ErrUnknownUniform)
		}
		if _, ok := seen[u.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicate, u.Name)
		}
		seen[u.Name] = struct{}{}
	}
	return nil
}

// Equal reports whether two schemas declare the same uniforms in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Value is anything that can be bound to a uniform slot.
type Value interface {
	Kind() Kind
}

// Scalar is a constant float uniform.
type Scalar float32

func (Scalar) Kind() Kind { return KindScalar }
func (Vec2) Kind() Kind   { return KindVec2 }
func (Vec3) Kind() Kind   { return KindVec3 }

// Kind reports that a Field binds as a texture.
func (f *Field) Kind() Kind { return KindTexture }

// ScalarRef binds a float that is read again on every execution.
type ScalarRef struct{ P *float32 }

func (ScalarRef) Kind() Kind { return KindScalar }

// Vec2Ref binds a Vec2 that is read again on every execution.
type Vec2Ref struct{ P *Vec2 }

func (Vec2Ref) Kind() Kind { return KindVec2 }

// Vec3Ref binds a Vec3 that is read again on every execution.
type Vec3Ref struct{ P *Vec3 }

func (Vec3Ref) Kind() Kind { return KindVec3 }

// Bindings maps uniform names to values for one pass.
type Bindings map[string]Value

// Arg is a resolved uniform handed to a backend. Exactly one of the value
// fields is meaningful, selected by Kind.
type Arg struct {
	Uniform
	Scalar float32
	Vec    [3]float32
	Buffer Buffer
}

// checkBindings matches bindings against the schema.
func checkBindings(s Schema, b Bindings) error {
	declared := make(map[string]Kind, len(s))
	for _, u := range s {
		declared[u.Name] = u.Kind
	}
	for name, v := range b {
		kind, ok := declared[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownUniform, name)
		}
		if v == nil {
			return fmt.Errorf("%w: %q is nil", ErrMissingUniform, name)
		}
		if v.Kind() != kind {
			return fmt.Errorf("%w: %q wants %s, got %s", ErrKindMismatch, name, kind, v.Kind())
		}
		if !refSet(v) {
			return fmt.Errorf("%w: %q has a nil reference", ErrMissingUniform, name)
		}
	}
	for _, u := range s {
		if _, ok := b[u.Name]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingUniform, u.Name)
		}
	}
	return nil
}

func refSet(v Value) bool {
	switch r := v.(type) {
	case ScalarRef:
		return r.P != nil
	case Vec2Ref:
		return r.P != nil
	case Vec3Ref:
		return r.P != nil
	case *Field:
		return r != nil
	}
	return true
}

// resolve turns a bound value into a backend argument. Fields resolve to
// their current read buffer at the moment of the call.
func resolve(u Uniform, v Value) Arg {
	a := Arg{Uniform: u}
	switch x := v.(type) {
	case Scalar:
		a.Scalar = float32(x)
	case ScalarRef:
		a.Scalar = *x.P
	case Vec2:
		a.Vec = [3]float32{x[0], x[1], 0}
	case Vec2Ref:
		a.Vec = [3]float32{x.P[0], x.P[1], 0}
	case Vec3:
		a.Vec = x
	case Vec3Ref:
		a.Vec = *x.P
	case *Field:
		a.Buffer = x.Current()
	}
	return a
}
