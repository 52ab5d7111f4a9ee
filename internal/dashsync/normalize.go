package dashsync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Transform converts a single source value. Returning nil writes an
// explicit null to the target field.
type Transform func(any) (any, error)

// FieldSpec maps one source field onto one target field.
type FieldSpec struct {
	Source    string
	Target    string
	Transform Transform
	Required  bool // missing value rejects the record instead of defaulting
	Default   any  // used when the source field is absent
}

// Mapping is the declarative normalization table for one dataset. The
// external key is the KeyFields values joined with ":" in order, after
// their transforms ran.
type Mapping struct {
	KeyFields []string
	Fields    []FieldSpec
}

// Normalize maps an external record onto the target schema. It is pure:
// the input record is not modified and no side effects occur. Rejections
// affect only this record.
func (m Mapping) Normalize(rec ExternalRecord) (NormalizedRecord, error) {
	fields := make(map[string]any, len(m.Fields))
	for _, spec := range m.Fields {
		v, ok := rec[spec.Source]
		if !ok || v == nil {
			if spec.Required {
				return NormalizedRecord{}, KeyDerivation(eris.Errorf("missing required field %q", spec.Source))
			}
			if spec.Default != nil {
				fields[spec.Target] = spec.Default
			}
			continue
		}
		if spec.Transform != nil {
			var err error
			v, err = spec.Transform(v)
			if err != nil {
				return NormalizedRecord{}, KeyDerivation(eris.Wrapf(err, "field %q", spec.Source))
			}
		}
		fields[spec.Target] = v
	}

	key, err := m.deriveKey(fields, rec)
	if err != nil {
		return NormalizedRecord{}, err
	}

	return NormalizedRecord{Key: key, Fields: fields}, nil
}

// deriveKey joins the natural-key values. Key fields refer to target
// field names, falling back to the raw record for fields not mapped.
func (m Mapping) deriveKey(fields map[string]any, rec ExternalRecord) (string, error) {
	if len(m.KeyFields) == 0 {
		return "", KeyDerivation(eris.New("mapping has no key fields"))
	}

	parts := make([]string, 0, len(m.KeyFields))
	for _, name := range m.KeyFields {
		v, ok := fields[name]
		if !ok {
			v, ok = rec[name]
		}
		if !ok || v == nil {
			return "", KeyDerivation(eris.Errorf("missing key field %q", name))
		}
		part, err := keyPart(v)
		if err != nil {
			return "", KeyDerivation(eris.Wrapf(err, "key field %q", name))
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ":"), nil
}

// keyPart renders one key component deterministically.
func keyPart(v any) (string, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", eris.New("empty value")
		}
		return s, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int, int32, int64:
		return fmt.Sprint(t), nil
	default:
		return "", eris.Errorf("unsupported key type %T", v)
	}
}
