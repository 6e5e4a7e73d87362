package pointer

// To returns a pointer to a copy of value
func To[T any](value T) *T {
	return &value
}

// Copy returns a pointer to a copy of the pointed to value, or nil
func Copy[T any](value *T) *T {
	if value == nil {
		return nil
	}
	return To(*value)
}

// IfValid returns a pointer to value when valid, and nil otherwise
func IfValid[T any](valid bool, value T) *T {
	if valid {
		return &value
	}
	return nil
}

// OrDefault returns value when it's non-nil, and a pointer to defaultValue otherwise
func OrDefault[T any](value *T, defaultValue T) *T {
	if value != nil {
		return value
	}
	return &defaultValue
}

// String returns a pointer to the provided string value
func String(value string) *string {
	return To(value)
}

// StringCopy returns a pointer that's a copy of the provided value
func StringCopy(value *string) *string {
	return Copy(value)
}

// StringIfValid returns a pointer to the value if it's valid, otherwise nil
func StringIfValid(valid bool, value string) *string {
	return IfValid(valid, value)
}

// StringOrDefault returns the pointer if not nil, otherwise the default value
func StringOrDefault(value *string, defaultValue string) *string {
	return OrDefault(value, defaultValue)
}
