package ncreader

import (
	"fmt"
	"reflect"
)

// flatten converts the nested slices produced by the decoder into a dense
// row-major float64 block and its shape.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	var shape []int
	for t := rv; t.Kind() == reflect.Slice; {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	out := make([]float64, 0, n)
	var walk func(reflect.Value, int) error
	walk = func(x reflect.Value, depth int) error {
		if x.Kind() == reflect.Slice {
			if depth >= len(shape) || x.Len() != shape[depth] {
				return fmt.Errorf("ragged array at depth %d", depth)
			}
			for i := range x.Len() {
				if err := walk(x.Index(i), depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		f, ok := number(x)
		if !ok {
			return fmt.Errorf("unsupported element type %s", x.Type())
		}
		out = append(out, f)
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func number(x reflect.Value) (float64, bool) {
	switch x.Kind() {
	case reflect.Float32, reflect.Float64:
		return x.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(x.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(x.Uint()), true
	}
	return 0, false
}

type packing struct {
	scale, offset float64
	fill          []float64
}

func (p packing) apply(data []float64) {
	if p.scale == 1 && p.offset == 0 {
		return
	}
next:
	for i, v := range data {
		for _, f := range p.fill {
			if v == f {
				continue next
			}
		}
		data[i] = v*p.scale + p.offset
	}
}
