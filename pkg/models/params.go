package models

import "fmt"

// Operation names a transformation. It is also the last path segment of the
// backend's submission endpoint.
type Operation string

const (
	OpResize    Operation = "resize"
	OpCrop      Operation = "crop"
	OpGrayscale Operation = "grayscale"
	OpSepia     Operation = "sepia"
)

// Field is one named scalar sent alongside the image.
type Field struct {
	Name  string
	Value string
}

// Params is the operation-specific parameter set. Each implementation fixes
// its operation and the exact set of fields it sends.
type Params interface {
	Operation() Operation
	Fields() []Field
}

// Resize scales the image to Width x Height. Values hold the caller's
// decimal text exactly as entered.
type Resize struct {
	Width  string
	Height string
}

func (Resize) Operation() Operation { return OpResize }

func (p Resize) Fields() []Field {
	return []Field{
		{Name: "width", Value: p.Width},
		{Name: "height", Value: p.Height},
	}
}

// Crop cuts the box (Left, Top)-(Right, Bottom) out of the image.
type Crop struct {
	Left   string
	Top    string
	Right  string
	Bottom string
}

func (Crop) Operation() Operation { return OpCrop }

func (p Crop) Fields() []Field {
	return []Field{
		{Name: "left", Value: p.Left},
		{Name: "top", Value: p.Top},
		{Name: "right", Value: p.Right},
		{Name: "bottom", Value: p.Bottom},
	}
}

// Grayscale converts the image to shades of grey. It carries no fields.
type Grayscale struct{}

func (Grayscale) Operation() Operation { return OpGrayscale }
func (Grayscale) Fields() []Field      { return nil }

// Sepia applies a sepia tone. It carries no fields.
type Sepia struct{}

func (Sepia) Operation() Operation { return OpSepia }
func (Sepia) Fields() []Field      { return nil }

// FieldNames returns the field names an operation expects, in send order.
func FieldNames(op Operation) ([]string, error) {
	switch op {
	case OpResize:
		return []string{"width", "height"}, nil
	case OpCrop:
		return []string{"left", "top", "right", "bottom"}, nil
	case OpGrayscale, OpSepia:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

// FieldMap flattens p into a name/value map.
func FieldMap(p Params) map[string]string {
	fields := p.Fields()
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	return m
}

// ParseParams builds the parameter variant for op. Every field the operation
// expects must be present; values are kept verbatim and numeric checks are
// left to the backend.
func ParseParams(op Operation, values map[string]string) (Params, error) {
	names, err := FieldNames(op)
	if err != nil {
		return nil, err
	}

	raw := make([]string, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%s: missing field %q", op, name)
		}
		raw[i] = v
	}

	switch op {
	case OpResize:
		return Resize{Width: raw[0], Height: raw[1]}, nil
	case OpCrop:
		return Crop{Left: raw[0], Top: raw[1], Right: raw[2], Bottom: raw[3]}, nil
	case OpGrayscale:
		return Grayscale{}, nil
	default:
		return Sepia{}, nil
	}
}
