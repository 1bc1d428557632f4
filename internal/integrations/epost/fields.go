package epost

// fieldKind declares how a field is validated before serialization.
type fieldKind int

const (
	kindPlain fieldKind = iota
	kindNumeric
	kindFlag
)

type fieldPair struct {
	key   string
	value string
	kind  fieldKind
}

// Fields is an order-preserving parameter list for a carrier call.
// Serialization keeps the exact caller order: the carrier's decryption does
// not care, but reordered concatenations have broken deployments before, so
// the codec never re-sorts.
type Fields struct {
	pairs []fieldPair
}

func NewFields() *Fields {
	return &Fields{}
}

// Add appends a free-text field.
func (f *Fields) Add(key, value string) *Fields {
	f.pairs = append(f.pairs, fieldPair{key: key, value: value, kind: kindPlain})
	return f
}

// AddNumeric appends a field that must parse as a positive number
// (weight, volume, insured amount).
func (f *Fields) AddNumeric(key, value string) *Fields {
	f.pairs = append(f.pairs, fieldPair{key: key, value: value, kind: kindNumeric})
	return f
}

// AddFlag appends a field that must be exactly "Y" or "N".
func (f *Fields) AddFlag(key, value string) *Fields {
	f.pairs = append(f.pairs, fieldPair{key: key, value: value, kind: kindFlag})
	return f
}

func (f *Fields) Len() int {
	return len(f.pairs)
}

// Each visits the fields in caller order.
func (f *Fields) Each(fn func(key, value string)) {
	for _, p := range f.pairs {
		fn(p.key, p.value)
	}
}

// Get returns the first value for key.
func (f *Fields) Get(key string) (string, bool) {
	for _, p := range f.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}
