package reconcile

// Field is an optional value with explicit presence, so that "absent",
// the empty string and zero stay distinguishable through a merge.
type Field[T any] struct {
	Value   T
	Present bool
}

// Some returns a present field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Present: true}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Present
}

// Or returns the value when present and def otherwise.
func (f Field[T]) Or(def T) T {
	if f.Present {
		return f.Value
	}
	return def
}

// apply stores the value into dst when present.
func (f Field[T]) apply(dst *T) {
	if f.Present {
		*dst = f.Value
	}
}
