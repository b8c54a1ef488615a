package features

import "github.com/couchcryptid/disaster-risk-service/internal/domain"

// LabelEncoder maps raw disaster-type strings onto the four canonical classes
// using a schema's alias table. Anything not in the table is "none".
type LabelEncoder struct {
	aliases map[string]domain.ClassLabel
}

func NewLabelEncoder(schema *Schema) LabelEncoder {
	return LabelEncoder{aliases: schema.Aliases}
}

// Label returns the canonical class for raw.
func (l LabelEncoder) Label(raw string) domain.ClassLabel {
	if c, ok := l.aliases[normalize(raw)]; ok {
		return c
	}
	return domain.ClassNone
}

// Encode returns the one-hot target for raw.
func (l LabelEncoder) Encode(raw string) domain.OneHot {
	return domain.OneHotOf(l.Label(raw))
}
